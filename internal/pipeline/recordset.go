package pipeline

import (
	"fmt"
	"strings"

	"fxingest/internal/market"
)

// RecordSet is an ordered snapshot of records at a stage boundary. It is
// treated as an immutable value: stages produce a new set rather than
// mutating the current one, which keeps concurrent access trivial.
type RecordSet struct {
	records []Record
}

// NewRecordSet wraps the given records. The slice is copied.
func NewRecordSet(records []Record) RecordSet {
	out := make([]Record, len(records))
	copy(out, records)
	return RecordSet{records: out}
}

// Len returns the number of records in the set.
func (rs RecordSet) Len() int { return len(rs.records) }

// Records returns a copy of the underlying records in order.
func (rs RecordSet) Records() []Record {
	out := make([]Record, len(rs.records))
	copy(out, rs.records)
	return out
}

// BuildRecordSet produces the initial record set: the Cartesian product of
// pairs x platforms x timeframes x months in the inclusive range, with
// combinations the provider does not publish filtered out by the static
// compatibility table. Inputs are sorted so identical configurations yield
// identical ordering across runs, which checkpoint resume depends on.
func BuildRecordSet(pairs, platforms, timeframes []string, start, end market.YearMonth) (RecordSet, error) {
	months, err := market.MonthsBetween(start, end)
	if err != nil {
		return RecordSet{}, err
	}

	// Identity keys are lowercase; normalize before sorting so mixed-case
	// input yields the same set, order, and checkpoint keys.
	lowered := make([]string, len(pairs))
	for i, p := range pairs {
		lowered[i] = strings.ToLower(p)
	}

	var records []Record
	for _, pair := range market.SortedCopy(lowered) {
		if !market.ValidPair(pair) {
			return RecordSet{}, fmt.Errorf("unknown pair %q", pair)
		}
		for _, platformName := range market.SortedCopy(platforms) {
			platform, err := market.ParsePlatform(platformName)
			if err != nil {
				return RecordSet{}, err
			}
			for _, timeframeName := range market.SortedCopy(timeframes) {
				timeframe, err := market.ParseTimeframe(timeframeName)
				if err != nil {
					return RecordSet{}, err
				}
				if !market.Supports(platform, timeframe) {
					continue
				}
				for _, ym := range months {
					records = append(records, NewRecord(pair, platform, timeframe, ym))
				}
			}
		}
	}
	return RecordSet{records: records}, nil
}
