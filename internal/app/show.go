package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent journal entries.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show deliveries")
	}
	if closeStore != nil {
		defer closeStore()
	}

	deliveries, err := store.ListRecentDeliveries(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		fmt.Fprintln(a.Out, "no deliveries found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (UTC)\tKind\tMessage\t%s\t%s\tBody\n", a.Config.Source.Primary.Symbol, a.Config.Source.Secondary.Symbol)

	for _, d := range deliveries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%s\n",
			d.SentAt.UTC().Format(time.RFC3339),
			d.Kind,
			d.MessageID,
			formatPrice(d.PrimaryPrice),
			formatPrice(d.SecondaryPrice),
			sanitizeInline(d.Body),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " | ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatPrice(d decimal.Decimal) string {
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return d.StringFixed(4)
	}
	return d.StringFixed(2)
}
