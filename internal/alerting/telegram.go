package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tele "gopkg.in/telebot.v3"

	"pxwatch/internal/logging"
)

// ParseMode selects how the channel interprets message markup.
type ParseMode string

const (
	// PlainText sends the message verbatim.
	PlainText ParseMode = ""
	// Markdown enables Telegram's legacy Markdown markup.
	Markdown ParseMode = ParseMode(tele.ModeMarkdown)
)

// SendError wraps every failure reported by the channel.
type SendError struct {
	Method string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Method, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Channel is the chat-delivery surface the service depends on.
type Channel interface {
	SendText(ctx context.Context, text string, mode ParseMode) (int, error)
	SendPhoto(ctx context.Context, image []byte, caption string) (int, error)
	Pin(ctx context.Context, messageID int) error
	Unpin(ctx context.Context, messageID int) error
}

// TelegramOptions configure the bot-backed channel.
type TelegramOptions struct {
	BotToken string
	ChatID   int64
	APIBase  string
	Timeout  time.Duration
}

// TelegramChannel delivers to one fixed chat through the Bot API.
type TelegramChannel struct {
	bot    *tele.Bot
	chat   tele.ChatID
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewTelegramChannel constructs the channel without contacting the API.
func NewTelegramChannel(opts TelegramOptions, logger zerolog.Logger) (*TelegramChannel, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = tele.DefaultApiURL
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(opts.APIBase, "/"),
		Token:   opts.BotToken,
		Client:  &http.Client{Timeout: opts.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramChannel{
		bot:    bot,
		chat:   tele.ChatID(opts.ChatID),
		logger: logging.Component(logger, "telegram"),
		tracer: otel.Tracer("pxwatch/alerting"),
	}, nil
}

// SendText posts a text message and returns its id.
func (c *TelegramChannel) SendText(ctx context.Context, text string, mode ParseMode) (int, error) {
	_, span := c.start(ctx, "sendMessage")
	defer span.End()

	opts := &tele.SendOptions{ParseMode: tele.ParseMode(mode), DisableWebPagePreview: true}
	msg, err := c.bot.Send(c.chat, text, opts)
	if err != nil {
		return 0, c.fail(span, "sendMessage", err)
	}

	c.logger.Info().Int("message_id", msg.ID).Int("chars", len(text)).Msg("message sent")
	return msg.ID, nil
}

// SendPhoto uploads image with caption and returns the message id.
func (c *TelegramChannel) SendPhoto(ctx context.Context, image []byte, caption string) (int, error) {
	_, span := c.start(ctx, "sendPhoto")
	defer span.End()

	if len(image) == 0 {
		return 0, c.fail(span, "sendPhoto", fmt.Errorf("empty image"))
	}

	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(image)), Caption: caption}
	msg, err := c.bot.Send(c.chat, photo)
	if err != nil {
		return 0, c.fail(span, "sendPhoto", err)
	}

	c.logger.Info().Int("message_id", msg.ID).Int("bytes", len(image)).Msg("photo sent")
	return msg.ID, nil
}

// Pin pins messageID in the chat without notifying members.
func (c *TelegramChannel) Pin(ctx context.Context, messageID int) error {
	_, span := c.start(ctx, "pinChatMessage")
	defer span.End()

	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: int64(c.chat)}
	if err := c.bot.Pin(stored, tele.Silent); err != nil {
		return c.fail(span, "pinChatMessage", err)
	}
	return nil
}

// Unpin removes the pin from messageID.
func (c *TelegramChannel) Unpin(ctx context.Context, messageID int) error {
	_, span := c.start(ctx, "unpinChatMessage")
	defer span.End()

	if err := c.bot.Unpin(c.chat, messageID); err != nil {
		return c.fail(span, "unpinChatMessage", err)
	}
	return nil
}

func (c *TelegramChannel) start(ctx context.Context, method string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "telegram."+method)
	span.SetAttributes(attribute.Int64("telegram.chat_id", int64(c.chat)))
	return ctx, span
}

func (c *TelegramChannel) fail(span trace.Span, method string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, method+" failed")
	return &SendError{Method: method, Err: err}
}

var _ Channel = (*TelegramChannel)(nil)
