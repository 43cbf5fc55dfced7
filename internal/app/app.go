package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pxwatch/internal/alerting"
	"pxwatch/internal/composer"
	"pxwatch/internal/config"
	"pxwatch/internal/fetcher"
	"pxwatch/internal/logging"
	"pxwatch/internal/scheduler"
	"pxwatch/internal/service"
	"pxwatch/internal/storage"
	"pxwatch/internal/tracing"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// root is handed to collaborators, which add their own component field.
	root zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout, root: logger}
}

func (a *App) newHTTPClient() *fetcher.HTTPClient {
	src := a.Config.Source
	return fetcher.NewHTTPClient(fetcher.HTTPOptions{
		Timeout:    src.RequestTimeout,
		Attempts:   src.RetryAttempts,
		RetryDelay: src.RetryDelay,
		UserAgent:  src.UserAgent,
	}, a.root)
}

func (a *App) newFetcher(client *fetcher.HTTPClient) *fetcher.PageFetcher {
	src := a.Config.Source
	return fetcher.NewPageFetcher(fetcher.PageOptions{
		Primary:     fetcher.Asset{Symbol: src.Primary.Symbol, URL: src.Primary.URL},
		Secondary:   fetcher.Asset{Symbol: src.Secondary.Symbol, URL: src.Secondary.URL},
		HomepageURL: src.HomepageURL,
	}, client, a.root)
}

func (a *App) newChannel() (*alerting.TelegramChannel, error) {
	if err := a.Config.RequireTelegram(); err != nil {
		return nil, err
	}
	tg := a.Config.Telegram
	return alerting.NewTelegramChannel(alerting.TelegramOptions{
		BotToken: tg.BotToken,
		ChatID:   tg.ChatID,
		APIBase:  tg.APIBase,
		Timeout:  tg.Timeout,
	}, a.root)
}

func (a *App) newComposer() (*composer.Composer, error) {
	start, err := a.Config.AnniversaryStart()
	if err != nil {
		return nil, err
	}
	return composer.New(composer.Options{
		Locale:          a.Config.Message.Locale,
		PrimaryPlaces:   a.Config.Source.Primary.Places,
		SecondaryPlaces: a.Config.Source.Secondary.Places,
		References:      a.Config.Message.References,
		StartDate:       start,
	}), nil
}

// newService wires the notification service. channel and journal may be nil for read-only use.
func (a *App) newService(channel alerting.Channel, journal storage.DeliveryJournal) (*service.Service, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	comp, err := a.newComposer()
	if err != nil {
		return nil, err
	}

	client := a.newHTTPClient()
	m := a.Config.Monthly
	return service.New(service.Options{
		Location:       loc,
		MonthlyEnabled: m.Enabled,
		Trigger:        service.MonthlyTrigger{Day: m.Day, Hour: m.Hour, Minute: m.Minute},
		ImageURL:       m.ImageURL,
		Heartbeat:      a.Config.Message.Heartbeat,
		RegularSpec:    a.Config.RegularSpec(),
		MonthlySpec:    a.Config.MonthlySpec(),
	}, a.newFetcher(client), client, channel, journal, comp, a.root), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running notifier.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	channel, err := a.newChannel()
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, a.Config.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var journal storage.DeliveryJournal
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; delivery journal disabled")
	} else {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if key := a.Config.Scheduler.AdvisoryLockKey; key != 0 {
			unlock, acquired, err := store.TryAdvisoryLock(ctx, key)
			if err != nil {
				return err
			}
			if !acquired {
				return fmt.Errorf("another instance holds advisory lock %d", key)
			}
			defer unlock()
		}
		journal = store
	}

	svc, err := a.newService(channel, journal)
	if err != nil {
		return err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Options{
		Location:     loc,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.root)

	a.Logger.Info().
		Str("timezone", loc.String()).
		Str("regular", a.Config.RegularSpec()).
		Bool("monthly", a.Config.Monthly.Enabled).
		Str("monthly_spec", a.Config.MonthlySpec()).
		Msg("starting notifier")
	err = svc.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("notifier terminated with error")
		return err
	}

	a.Logger.Info().Msg("notifier stopped")
	return nil
}

// ExportOptions hold parameters for exporting journaled prices.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PreviewOptions configure the preview command.
type PreviewOptions struct {
	Monthly bool
	Send    bool
}
