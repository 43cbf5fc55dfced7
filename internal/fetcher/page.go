package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pxwatch/internal/logging"
)

var (
	statisticsKey = regexp.MustCompile(`"statistics"\s*:\s*\{`)
	trendingKey   = regexp.MustCompile(`"highlightsData"\s*:\s*\{\s*"trendingList"\s*:\s*\[`)
)

// Asset identifies one tracked listing page.
type Asset struct {
	Symbol string
	URL    string
}

// PageOptions parameterise the listing-page adapter.
type PageOptions struct {
	Primary     Asset
	Secondary   Asset
	HomepageURL string
}

type getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// PageFetcher extracts prices from the embedded state of the public listing pages.
type PageFetcher struct {
	opts   PageOptions
	http   getter
	logger zerolog.Logger
	now    func() time.Time
}

// NewPageFetcher builds the adapter on top of a retrying getter.
func NewPageFetcher(opts PageOptions, client *HTTPClient, logger zerolog.Logger) *PageFetcher {
	return &PageFetcher{
		opts:   opts,
		http:   client,
		logger: logging.Component(logger, "page_fetcher"),
		now:    time.Now,
	}
}

// FetchPrices fetches both asset pages and returns a complete snapshot.
func (p *PageFetcher) FetchPrices(ctx context.Context) (Snapshot, error) {
	primary, err := p.fetchQuote(ctx, p.opts.Primary)
	if err != nil {
		return Snapshot{}, err
	}
	secondary, err := p.fetchQuote(ctx, p.opts.Secondary)
	if err != nil {
		return Snapshot{}, err
	}

	p.logger.Debug().
		Str(primary.Symbol, primary.Price.String()).
		Str(secondary.Symbol, secondary.Price.String()).
		Msg("prices fetched")

	return Snapshot{Primary: primary, Secondary: secondary, FetchedAt: p.now().UTC()}, nil
}

// FetchTrending reads the homepage trending list.
func (p *PageFetcher) FetchTrending(ctx context.Context) ([]TrendingCoin, error) {
	body, err := p.http.Get(ctx, p.opts.HomepageURL)
	if err != nil {
		return nil, err
	}
	coins, err := ExtractTrending(body)
	if err != nil {
		return nil, &FetchError{URL: p.opts.HomepageURL, Attempts: 1, Err: err}
	}
	return coins, nil
}

func (p *PageFetcher) fetchQuote(ctx context.Context, asset Asset) (Quote, error) {
	body, err := p.http.Get(ctx, asset.URL)
	if err != nil {
		return Quote{}, err
	}
	price, err := ExtractPrice(body)
	if err != nil {
		return Quote{}, &FetchError{URL: asset.URL, Attempts: 1, Err: fmt.Errorf("%s: %w", asset.Symbol, err)}
	}
	return Quote{Symbol: asset.Symbol, Price: price}, nil
}

// ExtractPrice finds the first "statistics" object in the document and reads its price.
// Script blocks are searched first; the raw document is the fallback.
func ExtractPrice(document []byte) (decimal.Decimal, error) {
	for _, candidate := range scriptBlocks(document) {
		if price, err := priceFromStatistics(candidate); !errors.Is(err, ErrPriceNotFound) {
			return price, err
		}
	}
	return priceFromStatistics(string(document))
}

// ExtractTrending decodes the homepage trending list.
func ExtractTrending(document []byte) ([]TrendingCoin, error) {
	text := string(document)
	loc := trendingKey.FindStringIndex(text)
	if loc == nil {
		return nil, fmt.Errorf("trending list: %w", ErrPriceNotFound)
	}

	var raw []struct {
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		PriceChange struct {
			Price json.RawMessage `json:"price"`
		} `json:"priceChange"`
	}
	if err := json.NewDecoder(strings.NewReader(text[loc[1]-1:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode trending list: %w", err)
	}

	coins := make([]TrendingCoin, 0, len(raw))
	for _, item := range raw {
		price, err := parsePrice(item.PriceChange.Price)
		if err != nil {
			price = decimal.Zero
		}
		coins = append(coins, TrendingCoin{Name: item.Name, Symbol: item.Symbol, Price: price})
	}
	return coins, nil
}

func scriptBlocks(document []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return nil
	}

	var blocks []string
	if next := doc.Find("script#__NEXT_DATA__"); next.Length() > 0 {
		blocks = append(blocks, next.Text())
	}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if id, _ := s.Attr("id"); id == "__NEXT_DATA__" {
			return
		}
		if text := s.Text(); strings.Contains(text, `"statistics"`) {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

func priceFromStatistics(text string) (decimal.Decimal, error) {
	loc := statisticsKey.FindStringIndex(text)
	if loc == nil {
		return decimal.Decimal{}, ErrPriceNotFound
	}

	var stats map[string]json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text[loc[1]-1:])).Decode(&stats); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: statistics object: %v", ErrInvalidPrice, err)
	}

	raw, ok := stats["price"]
	if !ok {
		return decimal.Decimal{}, ErrPriceNotFound
	}
	return parsePrice(raw)
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" || value == "null" {
		return decimal.Decimal{}, ErrPriceNotFound
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, value)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price.String())
	}
	return price, nil
}

var (
	_ PriceFetcher    = (*PageFetcher)(nil)
	_ TrendingFetcher = (*PageFetcher)(nil)
)
