// Package composer turns fetched prices into the text posted to the channel.
// Nothing here performs I/O and every function returns a string for any input.
package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pxwatch/internal/fetcher"
)

var hundred = decimal.NewFromInt(100)

// Options configure a Composer.
type Options struct {
	Locale          string
	PrimaryPlaces   int32
	SecondaryPlaces int32
	References      []decimal.Decimal
	StartDate       time.Time
}

// Composer renders the regular and the monthly update.
type Composer struct {
	opts   Options
	locale Locale
}

// New constructs a Composer; an unknown locale falls back to Arabic.
func New(opts Options) *Composer {
	if opts.PrimaryPlaces < 0 {
		opts.PrimaryPlaces = 4
	}
	if opts.SecondaryPlaces < 0 {
		opts.SecondaryPlaces = 2
	}
	refs := make([]decimal.Decimal, len(opts.References))
	copy(refs, opts.References)
	opts.References = refs

	return &Composer{opts: opts, locale: LookupLocale(opts.Locale)}
}

// Regular renders the recurring status update.
func (c *Composer) Regular(snap fetcher.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$%s %s$\n", snap.Primary.Symbol, snap.Primary.Price.StringFixed(c.opts.PrimaryPlaces))
	c.writeReferences(&b, snap.Primary.Price)
	fmt.Fprintf(&b, "\n$%s %s$", snap.Secondary.Symbol, snap.Secondary.Price.StringFixed(c.opts.SecondaryPlaces))
	return b.String()
}

// Monthly renders the anniversary message for the month containing now.
func (c *Composer) Monthly(snap fetcher.Snapshot, now time.Time) string {
	months := ElapsedMonths(c.opts.StartDate, now)

	var b strings.Builder
	fmt.Fprintf(&b, c.locale.Headline+"\n", snap.Primary.Symbol, c.locale.Ordinal(months))
	fmt.Fprintf(&b, c.locale.CurrentPrice+"\n", snap.Primary.Price.StringFixed(c.opts.PrimaryPlaces))
	c.writeReferences(&b, snap.Primary.Price)

	if len(c.opts.References) > 0 {
		ref := c.opts.References[0]
		if snap.Primary.Price.GreaterThanOrEqual(ref) {
			fmt.Fprintf(&b, c.locale.Recovered, ref.String())
		} else {
			fmt.Fprintf(&b, c.locale.NotRecovered, ref.String())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Composer) writeReferences(b *strings.Builder, current decimal.Decimal) {
	for _, ref := range c.opts.References {
		fmt.Fprintf(b, "From %s$ = %s\n", ref.String(), FormatChange(current, ref))
	}
}

// PercentChange is ((current - reference) / reference) * 100.
// The second result is false when reference is zero.
func PercentChange(current, reference decimal.Decimal) (decimal.Decimal, bool) {
	if reference.IsZero() {
		return decimal.Zero, false
	}
	return current.Sub(reference).Div(reference).Mul(hundred), true
}

// FormatChange renders the change with an explicit sign and two decimals.
// The sign is negative exactly when current is below reference.
func FormatChange(current, reference decimal.Decimal) string {
	pct, ok := PercentChange(current, reference)
	if !ok {
		return "n/a"
	}
	sign := "+"
	if current.LessThan(reference) {
		sign = "-"
	}
	return sign + pct.Abs().StringFixed(2) + "%"
}

// ElapsedMonths counts whole calendar months from start to now, never negative.
func ElapsedMonths(start, now time.Time) int {
	if start.IsZero() {
		return 0
	}
	if now.Location() != start.Location() {
		now = now.In(start.Location())
	}
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if now.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
