package venue

import (
	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

// StaticFeeTable resolves per-venue fees from configuration. Venues absent
// from the table report zero fees, which keeps spread math conservative-free
// rather than failing the cycle.
type StaticFeeTable struct {
	fees map[string]domain.VenueFees
}

var _ domain.FeeTable = (*StaticFeeTable)(nil)

// NewFeeTable builds a fee table from the configured venues.
func NewFeeTable(venues map[string]config.VenueConfig) *StaticFeeTable {
	t := &StaticFeeTable{fees: make(map[string]domain.VenueFees, len(venues))}
	for name, v := range venues {
		t.fees[name] = domain.VenueFees{
			MakerBps: v.MakerFeeBps,
			TakerBps: v.TakerFeeBps,
		}
	}
	return t
}

// Fees returns the fee schedule for a venue.
func (t *StaticFeeTable) Fees(venue string) domain.VenueFees {
	return t.fees[venue]
}
