package universe

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tkrause/spreadpilot/pkg/httputil"
	"github.com/tkrause/spreadpilot/pkg/logger"
	"github.com/tkrause/spreadpilot/pkg/redis"
)

const (
	sp500URL      = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
	sp500CacheKey = "universe:sp500"
	sp500CacheTTL = 7 * 24 * time.Hour // index membership barely moves week to week
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}( [A-Z])?$`)

// Loader resolves the S&P 500 membership list. The list is scraped from
// the Wikipedia constituents table and cached in Redis; when both the
// cache and the scrape fail, a pinned fallback list keeps the daily
// cycle alive.
type Loader struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	fallback   []string
}

// NewLoader creates a membership loader.
func NewLoader(httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *Loader {
	return &Loader{
		httpClient: httpClient,
		cache:      cache,
		logger:     log,
		fallback:   fallbackSymbols,
	}
}

// Symbols returns the current S&P 500 ticker list, venue-normalized and
// sorted in table order. Cache hit short-circuits the scrape.
func (l *Loader) Symbols(ctx context.Context) ([]string, error) {
	var cached []string
	if found, err := l.cache.Get(ctx, sp500CacheKey, &cached); err == nil && found && len(cached) > 0 {
		l.logger.WithField("count", len(cached)).Debug("Universe symbols served from cache")
		return cached, nil
	}

	symbols, err := l.scrape(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("S&P 500 scrape failed, using fallback list")
		return append([]string(nil), l.fallback...), nil
	}

	if err := l.cache.Set(ctx, sp500CacheKey, symbols, sp500CacheTTL); err != nil {
		l.logger.WithError(err).Warn("Failed to cache universe symbols")
	}

	l.logger.WithField("count", len(symbols)).Info("Universe symbols refreshed")
	return symbols, nil
}

// Refresh forces a scrape and cache overwrite. Used by the weekly
// scheduler job.
func (l *Loader) Refresh(ctx context.Context) (int, error) {
	symbols, err := l.scrape(ctx)
	if err != nil {
		return 0, err
	}
	if err := l.cache.Set(ctx, sp500CacheKey, symbols, sp500CacheTTL); err != nil {
		return 0, fmt.Errorf("cache universe symbols: %w", err)
	}
	return len(symbols), nil
}

func (l *Loader) scrape(ctx context.Context) ([]string, error) {
	resp, err := l.httpClient.Get(ctx, sp500URL)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("fetch constituents page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read constituents page: %w", err)
	}

	symbols, err := ParseConstituents(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	if len(symbols) < 400 {
		// A structurally broken page parses to a short list; treat it
		// as a failure rather than trading a truncated universe.
		return nil, fmt.Errorf("constituents table too small: %d rows", len(symbols))
	}
	return symbols, nil
}

// ParseConstituents extracts ticker symbols from the Wikipedia
// constituents table HTML.
func ParseConstituents(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse constituents html: %w", err)
	}

	table := doc.Find("table#constituents")
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("constituents table not found")
	}

	seen := make(map[string]bool)
	symbols := make([]string, 0, 510)
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return // header row
		}
		sym := NormalizeSymbol(cell.Text())
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	})

	if len(symbols) == 0 {
		return nil, fmt.Errorf("constituents table had no ticker rows")
	}
	return symbols, nil
}

// NormalizeSymbol converts an index-style ticker to venue symbology:
// share classes use a space separator (BRK.B -> BRK B). Anything that
// does not look like a ticker afterwards is dropped.
func NormalizeSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	sym = strings.ReplaceAll(sym, ".", " ")
	if !tickerPattern.MatchString(sym) {
		return ""
	}
	return sym
}
