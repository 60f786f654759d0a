// Package search indexes property versions for lookup by address, market and
// roster names. Meilisearch serves queries when healthy; PostgreSQL answers
// otherwise.
package search

import (
	"strings"

	"dealdesk/api/internal/deal"
)

// Result is a single search hit returned to the caller.
type Result struct {
	PropertyID   string `json:"propertyId"`
	Version      string `json:"version"`
	Address      string `json:"address"`
	Market       string `json:"market"`
	PropertyType string `json:"propertyType,omitempty"`
	IsLatest     bool   `json:"isLatest"`
	IsHistorical bool   `json:"isHistorical"`
	Snippet      string `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	PropertyID string // empty = all properties
	LatestOnly bool
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// VersionRecord is the data we index for a property version.
type VersionRecord struct {
	ID           string   `json:"id"`
	PropertyID   string   `json:"propertyId"`
	Version      string   `json:"version"`
	Address      string   `json:"address"`
	Market       string   `json:"market"`
	SubMarket    string   `json:"subMarket"`
	PropertyType string   `json:"propertyType"`
	TenantNames  []string `json:"tenantNames"`
	BrokerNames  []string `json:"brokerNames"`
	IsLatest     bool     `json:"isLatest"`
	IsHistorical bool     `json:"isHistorical"`
	UpdatedAt    int64    `json:"updatedAt"`
}

// RecordFromSnapshot builds the index document for a version. Deleted and
// vacant roster rows are not searchable.
func RecordFromSnapshot(s deal.Snapshot) VersionRecord {
	rec := VersionRecord{
		ID:           recordID(s.PropertyID, s.Version),
		PropertyID:   s.PropertyID,
		Version:      s.Version,
		Address:      s.PropertyDetails.Address,
		Market:       s.PropertyDetails.Market,
		SubMarket:    s.PropertyDetails.SubMarket,
		PropertyType: s.PropertyDetails.PropertyType,
		TenantNames:  []string{},
		BrokerNames:  []string{},
		IsLatest:     s.IsLatest,
		IsHistorical: s.IsHistorical,
		UpdatedAt:    s.UpdatedAt.Unix(),
	}
	for _, t := range s.Tenants {
		if t.IsVacant || t.IsDeleted {
			continue
		}
		rec.TenantNames = append(rec.TenantNames, t.TenantName)
	}
	for _, b := range s.Brokers {
		if b.IsDeleted {
			continue
		}
		rec.BrokerNames = append(rec.BrokerNames, b.Name)
	}
	return rec
}

// recordID maps a version key onto the id alphabet Meilisearch accepts.
func recordID(propertyID, version string) string {
	replacer := strings.NewReplacer(".", "_", " ", "-")
	return replacer.Replace(propertyID) + "__" + replacer.Replace(version)
}
