package notifications

import (
	"context"
	"log/slog"
	"time"
)

// Sender delivers a rendered message over one channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders message data and fans it out to all configured senders.
type Dispatcher struct {
	renderer *Renderer
	senders  []Sender
}

// NewDispatcher creates a new notification dispatcher. Sender order is
// preserved, so delivery happens in registration order.
func NewDispatcher(renderer *Renderer, senders ...Sender) *Dispatcher {
	return &Dispatcher{
		renderer: renderer,
		senders:  senders,
	}
}

// Dispatch renders and sends a message on every configured channel.
// Delivery is best effort: a failing channel is logged and counted,
// never propagated to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, data MessageData) {
	if len(d.senders) == 0 {
		slog.Debug("no notification senders configured", "kind", data.Kind)
		return
	}

	for _, sender := range d.senders {
		channel := sender.Channel()

		subject, body, err := d.renderer.Render(channel, data)
		if err != nil {
			slog.Error("failed to render notification",
				"channel", channel,
				"kind", data.Kind,
				"error", err,
			)
			recordNotificationSent(string(channel), "render_error")
			continue
		}

		start := time.Now()
		err = sender.Send(ctx, Message{Subject: subject, Body: body})
		recordNotificationDuration(string(channel), time.Since(start))

		if err != nil {
			status := "failed"
			if !IsRetryable(err) {
				status = "rejected"
			}
			slog.Error("failed to send notification",
				"channel", channel,
				"kind", data.Kind,
				"retryable", IsRetryable(err),
				"error", err,
			)
			recordNotificationSent(string(channel), status)
			continue
		}

		recordNotificationSent(string(channel), "sent")
	}
}
