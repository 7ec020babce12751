// Package market describes the provider's catalog: currency pairs,
// delivery platforms, bar timeframes and which combinations the
// provider actually publishes archives for.
package market

import (
	"fmt"
	"sort"
	"strings"
)

// Platform identifies a delivery format offered by the provider.
type Platform string

const (
	PlatformASCII       Platform = "ascii"
	PlatformMetatrader  Platform = "metatrader"
	PlatformNinjatrader Platform = "ninjatrader"
	PlatformMetastock   Platform = "metastock"
)

// Timeframe identifies the granularity of an archive.
type Timeframe string

const (
	TimeframeM1       Timeframe = "M1"
	TimeframeTick     Timeframe = "T"
	TimeframeTickLast Timeframe = "T_LAST"
)

// timeframeSlugs maps the short timeframe code to the path segment the
// provider uses in archive URLs.
var timeframeSlugs = map[Timeframe]string{
	TimeframeM1:       "1-minute-bar-quotes",
	TimeframeTick:     "tick-data-quotes",
	TimeframeTickLast: "tick-last-quotes",
}

// Slug returns the URL path segment for the timeframe.
func (t Timeframe) Slug() string {
	return timeframeSlugs[t]
}

// ParseTimeframe accepts either the short code or the long URL slug.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(s) {
	case "M1":
		return TimeframeM1, nil
	case "T":
		return TimeframeTick, nil
	case "T_LAST":
		return TimeframeTickLast, nil
	}
	for tf, slug := range timeframeSlugs {
		if strings.EqualFold(s, slug) {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(s)); p {
	case PlatformASCII, PlatformMetatrader, PlatformNinjatrader, PlatformMetastock:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// compatibility is the static table of timeframes each platform offers.
// Archives outside this table do not exist on the provider, so record
// building excludes them up front instead of discovering 404s at runtime.
var compatibility = map[Platform][]Timeframe{
	PlatformASCII:       {TimeframeM1, TimeframeTick},
	PlatformMetatrader:  {TimeframeM1},
	PlatformNinjatrader: {TimeframeM1, TimeframeTickLast},
	PlatformMetastock:   {TimeframeM1},
}

// Supports reports whether the platform publishes archives for the timeframe.
func Supports(p Platform, t Timeframe) bool {
	for _, tf := range compatibility[p] {
		if tf == t {
			return true
		}
	}
	return false
}

// Pairs is the catalog of instruments the provider serves.
var Pairs = []string{
	"audcad", "audchf", "audjpy", "audnzd", "audusd",
	"cadchf", "cadjpy", "chfjpy",
	"euraud", "eurcad", "eurchf", "eurczk", "eurgbp", "eurhuf", "eurjpy",
	"eurnok", "eurnzd", "eurpln", "eursek", "eurtry", "eurusd",
	"gbpaud", "gbpcad", "gbpchf", "gbpjpy", "gbpnzd", "gbpusd",
	"nzdcad", "nzdchf", "nzdjpy", "nzdusd",
	"sgdjpy",
	"usdcad", "usdchf", "usdczk", "usddkk", "usdhkd", "usdhuf", "usdjpy",
	"usdmxn", "usdnok", "usdpln", "usdsek", "usdsgd", "usdtry", "usdzar",
	"xagusd", "xauusd",
}

var pairSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Pairs))
	for _, p := range Pairs {
		m[p] = struct{}{}
	}
	return m
}()

// ValidPair reports whether the provider serves the instrument.
func ValidPair(pair string) bool {
	_, ok := pairSet[strings.ToLower(pair)]
	return ok
}

// SortedCopy returns a lexicographically sorted copy of the given names.
// Record building relies on this for a stable, reproducible ordering.
func SortedCopy(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}
