package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/equityrefresh/internal/store"
)

// PEQuery answers the "where does this security's current P/E sit in its
// own history" question directly off the Store, without materializing a
// separate ratios cache (spec's Open Question decision: the derivator,
// and by extension this read model, reads only the statement/price
// tables and valuation_ratios — never a parallel ad-hoc table).
type PEQuery struct {
	store *store.Store
}

func NewPEQuery(s *store.Store) *PEQuery { return &PEQuery{store: s} }

// PEPosition is the read-only result of comparing a security's latest
// P/E ratio against its own historical distribution.
type PEPosition struct {
	SecurityID     int64
	Current        *float64
	Distribution   Distribution
	ZScore         float64
	PercentileRank float64
	InBottomDecile bool
}

// Position loads a security's historical pe_ratio series plus its latest
// row and returns the position read model. Current is nil when the
// security has no pe_ratio at all; the Distribution may still be
// populated from older rows.
func (q *PEQuery) Position(ctx context.Context, securityID int64) (PEPosition, error) {
	series, err := q.store.ListPERatios(ctx, securityID)
	if err != nil {
		return PEPosition{}, fmt.Errorf("pe position for %d: %w", securityID, err)
	}
	pos := PEPosition{SecurityID: securityID, Distribution: Calculate(series)}

	latest, err := q.store.GetLatestValuationRatios(ctx, securityID)
	if err != nil {
		return PEPosition{}, fmt.Errorf("pe position for %d: %w", securityID, err)
	}
	if latest == nil || latest.PERatio == nil {
		return pos, nil
	}
	pos.Current = latest.PERatio

	positive := make([]float64, 0, len(series))
	for _, v := range series {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	sort.Float64s(positive)

	pos.ZScore = ZScore(*pos.Current, pos.Distribution)
	pos.PercentileRank = PercentileRank(*pos.Current, positive)
	pos.InBottomDecile = InBottomDecile(*pos.Current, pos.Distribution, positive)
	return pos, nil
}
