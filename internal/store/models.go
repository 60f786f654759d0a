package store

import (
	"errors"
	"time"

	"dealdesk/api/internal/deal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRevisionConflict = errors.New("revision conflict")
)

// CommitParams describes one guarded in-place save of an editable version.
type CommitParams struct {
	PropertyID       string
	Version          string
	ExpectedRevision int
	Content          deal.Content
	UpdatedBy        string
	Now              time.Time
}

// ForkParams describes a save-as. NextVersion receives every label in the
// property's lineage while the lineage is locked.
type ForkParams struct {
	PropertyID       string
	SourceVersion    string
	ExpectedRevision int
	Content          deal.Content
	UpdatedBy        string
	Now              time.Time
	NextVersion      func(labels []string) (string, error)
}

type ForkResult struct {
	Snapshot deal.Snapshot
	// Historicalized lists the labels that lost their latest flag.
	Historicalized []string
}

// SearchHit is a version matched by the database fallback search.
type SearchHit struct {
	PropertyID   string
	Version      string
	Address      string
	Market       string
	IsLatest     bool
	IsHistorical bool
	UpdatedAt    time.Time
}
