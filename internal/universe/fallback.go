package universe

// fallbackSymbols is a pinned subset of large-cap constituents used
// when both the membership cache and the scrape are unavailable. Every
// name here comfortably clears the market-cap and price floors, so a
// fallback day trades a narrower but still valid universe.
var fallbackSymbols = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "BRK B", "LLY",
	"AVGO", "TSLA", "JPM", "V", "UNH", "XOM", "MA", "JNJ",
	"PG", "HD", "COST", "ORCL", "MRK", "ABBV", "CVX", "CRM",
	"BAC", "KO", "AMD", "PEP", "NFLX", "WMT", "TMO", "ADBE",
	"LIN", "CSCO", "MCD", "ACN", "ABT", "WFC", "INTU", "QCOM",
	"DIS", "TXN", "CAT", "VZ", "IBM", "AMGN", "GE", "PFE",
	"NOW", "ISRG", "NEE", "CMCSA", "SPGI", "RTX", "UNP", "GS",
	"HON", "LOW", "T", "BKNG", "ELV", "AXP", "SYK", "BLK",
}
