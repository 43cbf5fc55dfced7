package app

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// Trending prints the homepage trending list.
func (a *App) Trending(ctx context.Context) error {
	coins, err := a.newFetcher(a.newHTTPClient()).FetchTrending(ctx)
	if err != nil {
		return err
	}
	if len(coins) == 0 {
		fmt.Fprintln(a.Out, "no trending coins found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tName\tSymbol\tPrice ($)")
	for i, coin := range coins {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", i+1, coin.Name, coin.Symbol, formatPrice(coin.Price))
	}
	return writer.Flush()
}
