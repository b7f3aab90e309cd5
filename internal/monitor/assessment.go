package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/star/debriswatch/internal/conjunction"
)

// Triggers recorded on each assessment.
const (
	TriggerInitial = "initial"
	TriggerTick    = "tick"
	TriggerCatalog = "catalog"
	TriggerManual  = "manual"
)

// Assessment is one published estimator run over one catalog snapshot. Immutable once
// published.
type Assessment struct {
	ID          uuid.UUID                         `json:"id"`
	CatalogID   uuid.UUID                         `json:"catalog_id"`
	ComputedAt  time.Time                         `json:"computed_at"`
	Trigger     string                            `json:"trigger"`
	ObjectCount int                               `json:"object_count"`
	Pairs       []conjunction.Pair                `json:"pairs"`
	Annotations map[string]conjunction.Annotation `json:"annotations"`
}

// Summary is the compact form kept in history listings.
type Summary struct {
	ID          uuid.UUID      `json:"id"`
	CatalogID   uuid.UUID      `json:"catalog_id"`
	ComputedAt  time.Time      `json:"computed_at"`
	Trigger     string         `json:"trigger"`
	ObjectCount int            `json:"object_count"`
	PairCount   int            `json:"pair_count"`
	Collisions  int            `json:"collisions"`
	ByRisk      map[string]int `json:"by_risk"`
}

// Summary reduces a to counts.
func (a *Assessment) Summary() Summary {
	s := Summary{
		ID:          a.ID,
		CatalogID:   a.CatalogID,
		ComputedAt:  a.ComputedAt,
		Trigger:     a.Trigger,
		ObjectCount: a.ObjectCount,
		PairCount:   len(a.Pairs),
		ByRisk:      map[string]int{"High": 0, "Medium": 0, "Low": 0},
	}
	for _, p := range a.Pairs {
		s.ByRisk[p.Risk.String()]++
		if p.Collision() {
			s.Collisions++
		}
	}
	return s
}

// Limit returns a copy of a with at most n pairs. Annotations are left as computed, so
// they may reference pairs beyond n.
func (a *Assessment) Limit(n int) *Assessment {
	if n < 0 || n >= len(a.Pairs) {
		return a
	}
	c := *a
	c.Pairs = a.Pairs[:n:n]
	return &c
}
