package deal

// CheckPayload rejects rosters with duplicate ids or a caller row posing as
// the vacant row.
func CheckPayload(brokers []Broker, tenants []Tenant) error {
	seen := make(map[string]struct{}, len(brokers))
	for _, b := range brokers {
		if _, dup := seen[b.ID]; dup {
			return Validation("Broker IDs must be unique")
		}
		seen[b.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(tenants))
	for _, t := range tenants {
		if t.IsVacant {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			return Validation("Tenant IDs must be unique for non-vacant rows")
		}
		seen[t.ID] = struct{}{}
	}

	for _, t := range tenants {
		if t.ID == VacantTenantID && !t.IsVacant {
			return Validation("Vacant row is system-managed and cannot be modified directly")
		}
	}
	return nil
}

// brokerIndex locates a broker that may still be edited.
func brokerIndex(brokers []Broker, id string) (int, error) {
	if id == VacantTenantID {
		return -1, Validation("Vacant row is system-managed and cannot be modified directly")
	}
	for i, b := range brokers {
		if b.ID != id {
			continue
		}
		if b.IsDeleted {
			return -1, Validation("Broker %s is deleted", id)
		}
		return i, nil
	}
	return -1, NotFound("Broker %s not found", id)
}

// tenantIndex locates a tenant that may still be edited.
func tenantIndex(tenants []Tenant, id string) (int, error) {
	if id == VacantTenantID {
		return -1, Validation("Vacant row is system-managed and cannot be modified directly")
	}
	for i, t := range tenants {
		if t.ID != id {
			continue
		}
		if t.IsVacant {
			return -1, Validation("Vacant row is system-managed and cannot be modified directly")
		}
		if t.IsDeleted {
			return -1, Validation("Tenant %s is deleted", id)
		}
		return i, nil
	}
	return -1, NotFound("Tenant %s not found", id)
}
