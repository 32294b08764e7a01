package services

import (
	"context"
	"log/slog"

	"boleteria/config"
	"boleteria/models"
	"boleteria/utils"

	pubnub "github.com/pubnub/go"
)

// Notifier delivers ticket codes and operator alerts. Delivery is
// fire-and-forget: a failed publish never rolls back ticket generation.
type Notifier interface {
	NotifyTickets(ctx context.Context, buyerID, purchaseID string, tickets []models.Ticket)
	NotifyOps(ctx context.Context, message string, details map[string]any)
}

// PubNubNotifier publishes to per-buyer channels and a shared ops channel,
// behind a circuit breaker so a flapping backend fails fast.
type PubNubNotifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
	config  *config.Config
}

func NewPubNubNotifier(pn *pubnub.PubNub, cfg *config.Config) *PubNubNotifier {
	return &PubNubNotifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
		config:  cfg,
	}
}

func (n *PubNubNotifier) NotifyTickets(ctx context.Context, buyerID, purchaseID string, tickets []models.Ticket) {
	codes := make([]string, len(tickets))
	for i, t := range tickets {
		codes[i] = t.DisplayCode
	}

	n.publish(ctx, "user-"+buyerID, map[string]any{
		"type":         "tickets_ready",
		"purchase_id":  purchaseID,
		"ticket_codes": codes,
	})
}

func (n *PubNubNotifier) NotifyOps(ctx context.Context, message string, details map[string]any) {
	payload := map[string]any{
		"type":    "ops_alert",
		"message": message,
	}
	for k, v := range details {
		payload[k] = v
	}
	n.publish(ctx, n.config.OpsChannel, payload)
}

func (n *PubNubNotifier) publish(ctx context.Context, channel string, message map[string]any) {
	err := n.breaker.Execute(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("notification publish failed", "channel", channel, "error", err)
	}
}

// NopNotifier drops everything. Used when PubNub keys are not configured.
type NopNotifier struct{}

func (NopNotifier) NotifyTickets(context.Context, string, string, []models.Ticket) {}

func (NopNotifier) NotifyOps(context.Context, string, map[string]any) {}
