package market

import (
	"fmt"
	"strings"
)

const baseURL = "https://www.histdata.com/download-free-forex-historical-data/?"

// platformCodes maps a platform to the short code embedded in zip names,
// matching the provider's own naming.
var platformCodes = map[Platform]string{
	PlatformASCII:       "ASCII",
	PlatformMetatrader:  "MT",
	PlatformNinjatrader: "NT",
	PlatformMetastock:   "MS",
}

// ArchivePageURL builds the provider page for one (pair, platform,
// timeframe, month) archive. The validate stage probes this URL; the
// download stage scrapes it for the one-time download token.
func ArchivePageURL(p Platform, t Timeframe, pair string, ym YearMonth) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d/%d",
		baseURL, p, t.Slug(), strings.ToLower(pair), ym.Year, int(ym.Month))
}

// ZipName returns the archive file name the provider ships, e.g.
// "HISTDATA_COM_ASCII_EURUSD_M1_202101.zip".
func ZipName(p Platform, t Timeframe, pair string, ym YearMonth) string {
	return fmt.Sprintf("HISTDATA_COM_%s_%s_%s_%s.zip",
		platformCodes[p], strings.ToUpper(pair), t, ym.Compact())
}
