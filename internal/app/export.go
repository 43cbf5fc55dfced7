package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pxwatch/internal/storage"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders journaled regular-update prices as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	deliveries, err := store.ListDeliveriesBetween(ctx, storage.KindRegular, from, to)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no deliveries found for export window")
		return nil
	}

	downsampled := downsample(deliveries, opts.MaxPoints)
	a.Logger.Info().Int("total", len(deliveries)).Int("exported", len(downsampled)).Msg("exporting deliveries")

	if opts.CSVPath != "" {
		if err := a.writeCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writePNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsample(deliveries []storage.Delivery, max int) []storage.Delivery {
	if max <= 0 || len(deliveries) <= max {
		return deliveries
	}
	if max == 1 {
		return deliveries[len(deliveries)-1:]
	}

	result := make([]storage.Delivery, 0, max)
	step := float64(len(deliveries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(deliveries) {
			idx = len(deliveries) - 1
		}
		result = append(result, deliveries[idx])
	}
	return result
}

func (a *App) writeCSV(path string, deliveries []storage.Delivery) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"sent_at", "message_id", a.Config.Source.Primary.Symbol, a.Config.Source.Secondary.Symbol}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, d := range deliveries {
		record := []string{
			d.SentAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(d.MessageID, 10),
			d.PrimaryPrice.String(),
			d.SecondaryPrice.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (a *App) writePNG(path string, deliveries []storage.Delivery) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(deliveries))
	primary := make([]float64, len(deliveries))
	secondary := make([]float64, len(deliveries))

	for i, d := range deliveries {
		x[i] = d.SentAt
		primary[i] = d.PrimaryPrice.InexactFloat64()
		secondary[i] = d.SecondaryPrice.InexactFloat64()
	}

	primaryName := a.Config.Source.Primary.Symbol
	secondaryName := a.Config.Source.Secondary.Symbol
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: primaryName + " ($)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: secondaryName + " ($)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    primaryName,
				XValues: x,
				YValues: primary,
			},
			chart.TimeSeries{
				Name:    secondaryName,
				XValues: x,
				YValues: secondary,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
