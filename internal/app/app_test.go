package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pxwatch/internal/config"
	"pxwatch/internal/storage"
)

func pageWithPrice(price string) string {
	return fmt.Sprintf(`<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{"statistics":{"price":%s}}}</script></body></html>`, price)
}

func newTestApp(t *testing.T, srv *httptest.Server) (*App, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Message.Locale = "en"
	cfg.Source.HomepageURL = srv.URL + "/"
	cfg.Source.Primary.URL = srv.URL + "/px"
	cfg.Source.Secondary.URL = srv.URL + "/ton"
	cfg.Source.RetryAttempts = 1
	cfg.Source.RetryDelay = 0

	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func priceServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/px", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageWithPrice("0.071")))
	})
	mux.HandleFunc("/ton", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageWithPrice("5.13")))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script>{"highlightsData":{"trendingList":[{"name":"Not Pixel","symbol":"PX","priceChange":{"price":0.071}},{"name":"Toncoin","symbol":"TON","priceChange":{"price":5.13}}]}}</script>`))
	})
	return httptest.NewServer(mux)
}

func TestPreviewPrintsRegularUpdate(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, out := newTestApp(t, srv)
	if err := a.Preview(context.Background(), PreviewOptions{}); err != nil {
		t.Fatalf("preview: %v", err)
	}
	want := "$PX 0.0710$\nFrom 0.3$ = -76.33%\n\n$TON 5.13$\n"
	if out.String() != want {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPreviewMonthly(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, out := newTestApp(t, srv)
	if err := a.Preview(context.Background(), PreviewOptions{Monthly: true}); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out.String(), "Congrats, you have been holding $PX") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPreviewSendRequiresCredentials(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, _ := newTestApp(t, srv)
	a.Config.Telegram.BotToken = ""
	if err := a.Preview(context.Background(), PreviewOptions{Send: true}); err == nil {
		t.Fatal("sending without credentials should fail fast")
	}
}

func TestPreviewSendDeliversPrintedText(t *testing.T) {
	var (
		mu        sync.Mutex
		pageHits  int
		delivered []string
	)
	mux := http.NewServeMux()
	price := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			pageHits++
			mu.Unlock()
			_, _ = w.Write([]byte(pageWithPrice(body)))
		}
	}
	mux.HandleFunc("/px", price("0.071"))
	mux.HandleFunc("/ton", price("5.13"))
	mux.HandleFunc("/bottoken/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		text, _ := payload["text"].(string)
		mu.Lock()
		delivered = append(delivered, text)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{
			"message_id": 7, "date": time.Now().Unix(), "text": text,
			"chat": map[string]any{"id": -100123, "type": "supergroup"},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, out := newTestApp(t, srv)
	a.Config.Telegram.BotToken = "token"
	a.Config.Telegram.ChatID = -100123
	a.Config.Telegram.APIBase = srv.URL

	if err := a.Preview(context.Background(), PreviewOptions{Send: true}); err != nil {
		t.Fatalf("preview: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if pageHits != 2 {
		t.Fatalf("expected one fetch per asset, got %d page requests", pageHits)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected one message, got %d", len(delivered))
	}
	if out.String() != delivered[0]+"\n" {
		t.Fatalf("printed %q but delivered %q", out.String(), delivered[0])
	}
}

func TestPreviewReportsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, out := newTestApp(t, srv)
	if err := a.Preview(context.Background(), PreviewOptions{}); err == nil {
		t.Fatal("expected fetch failure")
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be printed on failure, got %q", out.String())
	}
}

func TestTrending(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, out := newTestApp(t, srv)
	if err := a.Trending(context.Background()); err != nil {
		t.Fatalf("trending: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Not Pixel") || !strings.Contains(text, "0.0710") || !strings.Contains(text, "5.13") {
		t.Fatalf("unexpected output %q", text)
	}
}

func TestShowAndExportRequireDatabase(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, _ := newTestApp(t, srv)
	a.Config.Database.DSN = ""
	if err := a.Show(context.Background(), ShowOptions{Limit: 5}); err == nil {
		t.Fatal("show without database should fail")
	}
	if err := a.Export(context.Background(), ExportOptions{CSVPath: filepath.Join(t.TempDir(), "out.csv")}); err == nil {
		t.Fatal("export without database should fail")
	}
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("export without outputs should fail")
	}
}

func deliveries(n int) []storage.Delivery {
	base := time.Date(2025, 3, 1, 10, 0, 15, 0, time.UTC)
	out := make([]storage.Delivery, n)
	for i := range out {
		out[i] = storage.Delivery{
			Kind:           storage.KindRegular,
			MessageID:      int64(100 + i),
			PrimaryPrice:   decimal.RequireFromString("0.071"),
			SecondaryPrice: decimal.RequireFromString("5.13"),
			SentAt:         base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestDownsampleKeepsEndpoints(t *testing.T) {
	all := deliveries(10)
	got := downsample(all, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 points, got %d", len(got))
	}
	if got[0].MessageID != 100 || got[3].MessageID != 109 {
		t.Fatalf("endpoints should be kept, got %d..%d", got[0].MessageID, got[3].MessageID)
	}
	if len(downsample(all, 0)) != 10 || len(downsample(all, 20)) != 10 {
		t.Fatal("no downsampling expected")
	}
}

func TestWriteCSV(t *testing.T) {
	srv := priceServer()
	defer srv.Close()

	a, _ := newTestApp(t, srv)
	path := filepath.Join(t.TempDir(), "nested", "prices.csv")
	if err := a.writeCSV(path, deliveries(2)); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "sent_at,message_id,PX,TON" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "2025-03-01T10:00:15Z" || rows[1][1] != "100" || rows[1][2] != "0.071" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}
