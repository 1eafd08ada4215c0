// Package delivery sends rendered results to users on a best-effort basis.
package delivery

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/message"
	"github.com/yanbot/internal/metrics"
)

// Sender is the transport capability used for delivery.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, content message.Content) (int64, error)
}

// Dispatcher delivers content to users
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a dispatcher over sender
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Send makes one attempt to deliver content. Failures are logged and
// reported through the return value only; callers are not expected to act on
// them.
func (d *Dispatcher) Send(ctx context.Context, userID int64, content message.Content) bool {
	if _, err := d.sender.SendMessage(ctx, userID, content); err != nil {
		metrics.IncDelivery("error")
		log.Error().Err(err).
			Int64("user_id", userID).
			Int("affordances", len(content.Affordances)).
			Msg("Failed to deliver message")
		return false
	}
	metrics.IncDelivery("ok")
	return true
}
