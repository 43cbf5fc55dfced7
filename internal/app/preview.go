package app

import (
	"context"
	"fmt"
	"time"

	"pxwatch/internal/alerting"
)

// Preview fetches once and prints the composed message. With Send it is
// delivered exactly as the scheduled job would, pin included for the monthly message.
func (a *App) Preview(ctx context.Context, opts PreviewOptions) error {
	var channel alerting.Channel
	if opts.Send {
		tg, err := a.newChannel()
		if err != nil {
			return err
		}
		channel = tg
	}

	svc, err := a.newService(channel, nil)
	if err != nil {
		return err
	}

	now := time.Now()
	if !opts.Send {
		text, err := svc.Preview(ctx, opts.Monthly, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, text)
		return nil
	}

	text, err := svc.Deliver(ctx, opts.Monthly, now)
	if text != "" {
		fmt.Fprintln(a.Out, text)
	}
	if err != nil {
		return err
	}
	a.Logger.Info().Bool("monthly", opts.Monthly).Msg("preview delivered")
	return nil
}
