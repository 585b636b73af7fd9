// Package freshness implements the Freshness Checker (spec §4.5, C5): a
// pure classifier that turns per-source DataStatus rows into a staleness
// report the Orchestrator uses to decide which steps to skip.
package freshness

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/equityrefresh/internal/store"
)

// Status is a per-source staleness classification.
type Status string

const (
	Current Status = "current"
	Stale   Status = "stale"
	Missing Status = "missing"
	Error   Status = "error"
)

// Priority is the refresh urgency implied by a source's status.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Source names the five data sources the checker classifies (spec §4.5).
type Source string

const (
	SourceDailyPrices         Source = "daily_prices"
	SourceFinancialStatements Source = "financial_statements"
	SourcePERatios            Source = "pe_ratios"
	SourcePSEVSRatios         Source = "ps_evs_ratios"
	SourceCompanyMetadata     Source = "company_metadata"
)

// thresholds maps each source to its freshness threshold in days (spec §4.5).
var thresholds = map[Source]int{
	SourceDailyPrices:         1,
	SourcePERatios:            1,
	SourcePSEVSRatios:         7,
	SourceFinancialStatements: 90,
	SourceCompanyMetadata:     30,
}

// minRecords is the minimum row count below which a source with a fresh
// latest-date is still considered Missing rather than Current.
var minRecords = map[Source]int{
	SourceDailyPrices:         1,
	SourcePERatios:            1,
	SourcePSEVSRatios:         1,
	SourceFinancialStatements: 1,
	SourceCompanyMetadata:     1,
}

var allSources = []Source{
	SourceDailyPrices,
	SourceFinancialStatements,
	SourcePERatios,
	SourcePSEVSRatios,
	SourceCompanyMetadata,
}

// SourceReport is one source's classification.
type SourceReport struct {
	Source       Source
	Status       Status
	StalenessDays int
	Message      string
	Priority     Priority
}

// Report is the full freshness report for a refresh decision (spec §4.5).
// It is pure: building one performs no writes.
type Report struct {
	Sources               map[Source]SourceReport
	ValueScreeningReady    bool
	PERatioScreeningReady  bool
}

// Check builds a Report from the Store's current DataStatus rows as of now.
func Check(ctx context.Context, s *store.Store, now time.Time) (*Report, error) {
	statuses := make(map[Source]SourceReport, len(allSources))
	for _, src := range allSources {
		ds, err := s.GetDataStatus(ctx, string(src))
		if err != nil {
			return nil, fmt.Errorf("freshness: load status for %s: %w", src, err)
		}
		statuses[src] = classify(src, ds, now)
	}

	r := &Report{Sources: statuses}
	r.ValueScreeningReady = readyOrStale(statuses[SourceFinancialStatements]) && readyOrStale(statuses[SourcePSEVSRatios])
	r.PERatioScreeningReady = statuses[SourceDailyPrices].Status == Current && statuses[SourcePERatios].Status == Current
	return r, nil
}

func readyOrStale(r SourceReport) bool {
	return r.Status == Current || r.Status == Stale
}

func classify(src Source, ds *store.DataStatus, now time.Time) SourceReport {
	threshold := thresholds[src]
	minRows := minRecords[src]

	if ds == nil {
		return SourceReport{
			Source: src, Status: Missing, StalenessDays: -1,
			Message:  fmt.Sprintf("%s has never been refreshed", src),
			Priority: PriorityCritical,
		}
	}
	if ds.LastError != nil && *ds.LastError != "" {
		return SourceReport{
			Source: src, Status: Error, StalenessDays: -1,
			Message:  fmt.Sprintf("%s last refresh failed: %s", src, *ds.LastError),
			Priority: PriorityCritical,
		}
	}
	if ds.Records < minRows || ds.LatestDate == nil {
		return SourceReport{
			Source: src, Status: Missing, StalenessDays: -1,
			Message:  fmt.Sprintf("%s has no usable data (%d records)", src, ds.Records),
			Priority: PriorityCritical,
		}
	}

	days := int(now.Sub(*ds.LatestDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if days <= threshold {
		return SourceReport{
			Source: src, Status: Current, StalenessDays: days,
			Message:  fmt.Sprintf("%s is current (%d day(s) old)", src, days),
			Priority: PriorityLow,
		}
	}

	priority := PriorityMedium
	switch {
	case days > threshold*4:
		priority = PriorityHigh
	case days > threshold*2:
		priority = PriorityMedium
	}
	return SourceReport{
		Source: src, Status: Stale, StalenessDays: days,
		Message:  fmt.Sprintf("%s is stale (%d day(s) old, threshold %d)", src, days, threshold),
		Priority: priority,
	}
}
