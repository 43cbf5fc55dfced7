package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pxwatch/internal/alerting"
	"pxwatch/internal/composer"
	"pxwatch/internal/fetcher"
	"pxwatch/internal/logging"
	"pxwatch/internal/scheduler"
	"pxwatch/internal/storage"
)

// MonthlyTrigger is the civil-time minute in which the anniversary message may fire.
type MonthlyTrigger struct {
	Day    int
	Hour   int
	Minute int
}

// Options tune the notification policy.
type Options struct {
	Location       *time.Location
	MonthlyEnabled bool
	Trigger        MonthlyTrigger
	ImageURL       string
	// Heartbeat re-sends an unchanged regular update once this much time has
	// passed since the last delivery. Zero means send on change only.
	Heartbeat   time.Duration
	RegularSpec string
	MonthlySpec string
}

// Service decides what to post on each trigger and remembers what it already posted.
// It is driven by a single scheduler goroutine, so its state needs no locking.
type Service struct {
	prices   fetcher.PriceFetcher
	images   fetcher.Downloader
	channel  alerting.Channel
	journal  storage.DeliveryJournal
	composer *composer.Composer
	opts     Options
	logger   zerolog.Logger
	tracer   trace.Tracer

	lastSent    string
	lastSentAt  time.Time
	lastMonthly string
	pinnedID    int
}

// New constructs the notification service. images and journal may be nil.
func New(opts Options, prices fetcher.PriceFetcher, images fetcher.Downloader, channel alerting.Channel, journal storage.DeliveryJournal, comp *composer.Composer, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		prices:   prices,
		images:   images,
		channel:  channel,
		journal:  journal,
		composer: comp,
		opts:     opts,
		logger:   logging.Component(logger, "service"),
		tracer:   otel.Tracer("pxwatch/service"),
	}
}

// Register adds the monthly job (when enabled) and then the regular job, so a
// shared trigger instant always evaluates the monthly message first.
func (s *Service) Register(sched *scheduler.Scheduler) error {
	if s.opts.MonthlyEnabled {
		if err := sched.Add("monthly", s.opts.MonthlySpec, s.RunMonthly); err != nil {
			return err
		}
	}
	return sched.Add("regular", s.opts.RegularSpec, s.RunRegular)
}

// Run registers the jobs and blocks in the scheduler loop.
func (s *Service) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.Register(sched); err != nil {
		return err
	}
	return sched.Run(ctx)
}

// RunRegular fetches prices and posts the status update when it is new or the heartbeat is due.
func (s *Service) RunRegular(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "service.regular")
	defer span.End()

	snap, err := s.prices.FetchPrices(ctx)
	if err != nil {
		return fmt.Errorf("regular update: %w", err)
	}

	text := s.composer.Regular(snap)
	if !s.regularDue(text, now) {
		s.logger.Debug().Time("last_sent_at", s.lastSentAt).Msg("regular update unchanged; skipped")
		span.SetAttributes(attribute.Bool("service.suppressed", true))
		return nil
	}

	return s.sendRegular(ctx, snap, text, now)
}

func (s *Service) sendRegular(ctx context.Context, snap fetcher.Snapshot, text string, now time.Time) error {
	id, err := s.channel.SendText(ctx, text, alerting.Markdown)
	if err != nil {
		return fmt.Errorf("regular update: %w", err)
	}

	s.lastSent = text
	s.lastSentAt = now
	s.logger.Info().Int("message_id", id).
		Str("primary", snap.Primary.Price.String()).
		Str("secondary", snap.Secondary.Price.String()).
		Msg("regular update delivered")
	s.record(ctx, storage.KindRegular, id, text, snap, now)
	return nil
}

// RunMonthly posts the anniversary message when now falls inside the trigger
// minute and it has not fired yet today.
func (s *Service) RunMonthly(ctx context.Context, now time.Time) error {
	now = now.In(s.opts.Location)
	if !s.inWindow(now) {
		return nil
	}
	if s.lastMonthly == civilDate(now) {
		s.logger.Debug().Str("date", s.lastMonthly).Msg("monthly update already delivered today")
		return nil
	}
	return s.SendMonthly(ctx, now)
}

// SendMonthly fetches, composes and delivers the anniversary message, then moves the pin to it.
func (s *Service) SendMonthly(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "service.monthly")
	defer span.End()

	now = now.In(s.opts.Location)
	snap, err := s.prices.FetchPrices(ctx)
	if err != nil {
		return fmt.Errorf("monthly update: %w", err)
	}

	return s.sendMonthly(ctx, snap, s.composer.Monthly(snap, now), now)
}

func (s *Service) sendMonthly(ctx context.Context, snap fetcher.Snapshot, text string, now time.Time) error {
	id, err := s.deliverMonthly(ctx, text)
	if err != nil {
		return fmt.Errorf("monthly update: %w", err)
	}

	s.lastMonthly = civilDate(now)
	s.logger.Info().Int("message_id", id).Str("date", s.lastMonthly).Msg("monthly update delivered")

	s.repin(ctx, id)
	s.record(ctx, storage.KindMonthly, id, text, snap, now)
	return nil
}

// Preview composes without sending.
func (s *Service) Preview(ctx context.Context, monthly bool, now time.Time) (string, error) {
	snap, err := s.prices.FetchPrices(ctx)
	if err != nil {
		return "", err
	}
	if monthly {
		return s.composer.Monthly(snap, now.In(s.opts.Location)), nil
	}
	return s.composer.Regular(snap), nil
}

// Deliver composes from a single fetch, sends it regardless of de-duplication
// state and returns the text that went out.
func (s *Service) Deliver(ctx context.Context, monthly bool, now time.Time) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.deliver")
	defer span.End()
	span.SetAttributes(attribute.Bool("service.monthly", monthly))

	snap, err := s.prices.FetchPrices(ctx)
	if err != nil {
		return "", err
	}
	if monthly {
		now = now.In(s.opts.Location)
		text := s.composer.Monthly(snap, now)
		return text, s.sendMonthly(ctx, snap, text, now)
	}
	text := s.composer.Regular(snap)
	return text, s.sendRegular(ctx, snap, text, now)
}

func (s *Service) regularDue(text string, now time.Time) bool {
	if s.lastSentAt.IsZero() || text != s.lastSent {
		return true
	}
	return s.opts.Heartbeat > 0 && now.Sub(s.lastSentAt) >= s.opts.Heartbeat
}

func (s *Service) inWindow(now time.Time) bool {
	t := s.opts.Trigger
	return now.Day() == t.Day && now.Hour() == t.Hour && now.Minute() == t.Minute
}

// deliverMonthly prefers a photo with caption and falls back to plain text on any photo failure.
func (s *Service) deliverMonthly(ctx context.Context, text string) (int, error) {
	if s.opts.ImageURL != "" && s.images != nil {
		image, err := s.images.Download(ctx, s.opts.ImageURL)
		if err != nil {
			s.logger.Warn().Err(err).Msg("monthly image unavailable; sending text only")
		} else {
			id, err := s.channel.SendPhoto(ctx, image, text)
			if err == nil {
				return id, nil
			}
			s.logger.Warn().Err(err).Msg("monthly photo rejected; sending text only")
		}
	}
	return s.channel.SendText(ctx, text, alerting.PlainText)
}

// repin pins id and then unpins the previous anniversary message. A failed pin keeps the old pin.
func (s *Service) repin(ctx context.Context, id int) {
	if err := s.channel.Pin(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int("message_id", id).Msg("pin failed")
		return
	}

	previous := s.pinnedID
	s.pinnedID = id
	if previous == 0 || previous == id {
		return
	}
	if err := s.channel.Unpin(ctx, previous); err != nil {
		s.logger.Warn().Err(err).Int("message_id", previous).Msg("unpin failed")
	}
}

func (s *Service) record(ctx context.Context, kind string, id int, text string, snap fetcher.Snapshot, now time.Time) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.RecordDelivery(ctx, storage.Delivery{
		Kind:           kind,
		MessageID:      int64(id),
		Body:           text,
		PrimaryPrice:   snap.Primary.Price,
		SecondaryPrice: snap.Secondary.Price,
		SentAt:         now.UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("failed to journal delivery")
	}
}

func civilDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
