package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnexpectedStatus marks a non-2xx response from the listing site.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// ErrPriceNotFound means the document carried no recognisable price field.
	ErrPriceNotFound = errors.New("price field not found")
	// ErrInvalidPrice means the price field was present but not a positive number.
	ErrInvalidPrice = errors.New("invalid price value")
)

// FetchError is the only error the adapter hands back to its callers.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Quote is the price of one tracked asset.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
}

// Snapshot holds both tracked prices from a single poll.
type Snapshot struct {
	Primary   Quote
	Secondary Quote
	FetchedAt time.Time
}

// TrendingCoin is one entry of the homepage trending list.
type TrendingCoin struct {
	Name   string
	Symbol string
	Price  decimal.Decimal
}

// PriceFetcher returns a complete snapshot or a *FetchError, never a partial result.
type PriceFetcher interface {
	FetchPrices(ctx context.Context) (Snapshot, error)
}

// TrendingFetcher lists the homepage trending coins.
type TrendingFetcher interface {
	FetchTrending(ctx context.Context) ([]TrendingCoin, error)
}

// Downloader retrieves raw bytes, such as the monthly image, with the same retry policy.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}
