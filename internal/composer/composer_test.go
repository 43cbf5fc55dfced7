package composer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pxwatch/internal/fetcher"
)

func snapshot(primary, secondary string) fetcher.Snapshot {
	return fetcher.Snapshot{
		Primary:   fetcher.Quote{Symbol: "PX", Price: decimal.RequireFromString(primary)},
		Secondary: fetcher.Quote{Symbol: "TON", Price: decimal.RequireFromString(secondary)},
	}
}

func newComposer(locale string, refs ...string) *Composer {
	decs := make([]decimal.Decimal, 0, len(refs))
	for _, r := range refs {
		decs = append(decs, decimal.RequireFromString(r))
	}
	return New(Options{
		Locale:          locale,
		PrimaryPlaces:   4,
		SecondaryPlaces: 2,
		References:      decs,
		StartDate:       time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC),
	})
}

func TestRegularUpdateText(t *testing.T) {
	c := newComposer("ar", "0.3", "0.2")
	text := c.Regular(snapshot("0.071", "5.126"))

	for _, want := range []string{"$PX 0.0710$", "From 0.3$ = -76.33%", "From 0.2$ = -64.50%", "$TON 5.13$"} {
		if !strings.Contains(text, want) {
			t.Fatalf("regular update should contain %q:\n%s", want, text)
		}
	}
	if strings.Count(text, "%") != 2 {
		t.Fatalf("secondary asset must not carry a percentage:\n%s", text)
	}
}

func TestRegularUpdateIsDeterministic(t *testing.T) {
	c := newComposer("en", "0.3")
	snap := snapshot("0.12345", "3.1")
	if c.Regular(snap) != c.Regular(snap) {
		t.Fatal("identical inputs must yield identical text")
	}
}

func TestFormatChangeSign(t *testing.T) {
	cases := []struct {
		current, reference, want string
	}{
		{"0.071", "0.3", "-76.33%"},
		{"0.3", "0.3", "+0.00%"},
		{"0.45", "0.3", "+50.00%"},
		{"0.2999999", "0.3", "-0.00%"},
		{"0.3000001", "0.3", "+0.00%"},
	}
	for _, tc := range cases {
		got := FormatChange(decimal.RequireFromString(tc.current), decimal.RequireFromString(tc.reference))
		if got != tc.want {
			t.Fatalf("FormatChange(%s, %s) = %s, want %s", tc.current, tc.reference, got, tc.want)
		}
	}
}

func TestFormatChangeZeroReference(t *testing.T) {
	if got := FormatChange(decimal.NewFromInt(1), decimal.Zero); got != "n/a" {
		t.Fatalf("zero reference should render n/a, got %s", got)
	}
}

func TestElapsedMonths(t *testing.T) {
	start := time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2024, 5, 22, 14, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 2, 22, 14, 0, 0, 0, time.UTC), 10},
		{time.Date(2025, 2, 21, 23, 59, 0, 0, time.UTC), 9},
		{time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, 4, 22, 0, 0, 0, 0, time.UTC), 24},
	}
	for _, tc := range cases {
		if got := ElapsedMonths(start, tc.now); got != tc.want {
			t.Fatalf("ElapsedMonths(%s) = %d, want %d", tc.now.Format(time.DateOnly), got, tc.want)
		}
	}
}

func TestOrdinalFallback(t *testing.T) {
	en := LookupLocale("en")
	if got := en.Ordinal(1); got != "the first month" {
		t.Fatalf("unexpected first ordinal %q", got)
	}
	if got := en.Ordinal(11); got != "11 months" {
		t.Fatalf("months beyond the table should fall back to a number, got %q", got)
	}
	if got := LookupLocale("xx").Ordinal(3); got != "الشهر الثالث" {
		t.Fatalf("unknown locale should fall back to Arabic, got %q", got)
	}
}

func TestMonthlyUpdateText(t *testing.T) {
	c := newComposer("en", "0.3", "0.2")
	now := time.Date(2025, 2, 22, 14, 0, 0, 0, time.UTC)

	text := c.Monthly(snapshot("0.071", "5.1"), now)
	for _, want := range []string{"the tenth month", "Price now 0.0710$", "From 0.3$ = -76.33%", "Not recovered yet: still below 0.3$"} {
		if !strings.Contains(text, want) {
			t.Fatalf("monthly update should contain %q:\n%s", want, text)
		}
	}

	recovered := c.Monthly(snapshot("0.3", "5.1"), now)
	if !strings.Contains(recovered, "Recovered: back above 0.3$") {
		t.Fatalf("price equal to the reference counts as recovered:\n%s", recovered)
	}

	later := c.Monthly(snapshot("0.071", "5.1"), time.Date(2025, 6, 22, 14, 0, 0, 0, time.UTC))
	if !strings.Contains(later, "14 months") {
		t.Fatalf("month 14 should use the numeric form:\n%s", later)
	}
}
