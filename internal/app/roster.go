package app

import (
	"context"
	"time"

	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/util"
)

func (s *Service) CreateBroker(ctx context.Context, actor, propertyID, version string, expectedRevision int, in deal.BrokerInput) (deal.Snapshot, error) {
	id := util.NewID("broker")
	return s.mutate(ctx, actor, deal.ActionCreateBroker, propertyID, version, expectedRevision,
		func(current deal.Snapshot, _ time.Time) (deal.Content, error) {
			return current.Content.AddBroker(in.Broker(id))
		})
}

func (s *Service) UpdateBroker(ctx context.Context, actor, propertyID, version, brokerID string, expectedRevision int, patch deal.BrokerPatch) (deal.Snapshot, error) {
	return s.mutate(ctx, actor, deal.ActionUpdateBroker, propertyID, version, expectedRevision,
		func(current deal.Snapshot, _ time.Time) (deal.Content, error) {
			return current.Content.UpdateBroker(brokerID, patch)
		})
}

// SoftDeleteBroker keeps the row and stamps who removed it and when.
func (s *Service) SoftDeleteBroker(ctx context.Context, actor, propertyID, version, brokerID string, expectedRevision int) (deal.Snapshot, error) {
	return s.mutate(ctx, actor, deal.ActionDeleteBroker, propertyID, version, expectedRevision,
		func(current deal.Snapshot, now time.Time) (deal.Content, error) {
			return current.Content.SoftDeleteBroker(brokerID, actor, now)
		})
}

func (s *Service) CreateTenant(ctx context.Context, actor, propertyID, version string, expectedRevision int, in deal.TenantInput) (deal.Snapshot, error) {
	id := util.NewID("tenant")
	return s.mutate(ctx, actor, deal.ActionCreateTenant, propertyID, version, expectedRevision,
		func(current deal.Snapshot, now time.Time) (deal.Content, error) {
			return current.Content.AddTenant(in.Tenant(id), now)
		})
}

func (s *Service) UpdateTenant(ctx context.Context, actor, propertyID, version, tenantID string, expectedRevision int, patch deal.TenantPatch) (deal.Snapshot, error) {
	return s.mutate(ctx, actor, deal.ActionUpdateTenant, propertyID, version, expectedRevision,
		func(current deal.Snapshot, now time.Time) (deal.Content, error) {
			return current.Content.UpdateTenant(tenantID, patch, now)
		})
}

// SoftDeleteTenant frees the tenant's space back into the vacant row.
func (s *Service) SoftDeleteTenant(ctx context.Context, actor, propertyID, version, tenantID string, expectedRevision int) (deal.Snapshot, error) {
	return s.mutate(ctx, actor, deal.ActionDeleteTenant, propertyID, version, expectedRevision,
		func(current deal.Snapshot, now time.Time) (deal.Content, error) {
			return current.Content.SoftDeleteTenant(tenantID, actor, now)
		})
}
