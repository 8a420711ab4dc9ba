package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const newOrderSubject = "A new order has been placed"

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes mails to the log; delivery is handled elsewhere.
type LogMailer struct{ Log *zap.Logger }

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Log.Info("mail sent", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}

func OrderMailBody(orderID int64, username string, totalCents int64, baseURL string) string {
	return fmt.Sprintf("Order ID: %d has been placed by user: %s. Total amount: $%d.%02d\nCheck at URL: %s/admin/orders/%d\n",
		orderID, username, totalCents/100, totalCents%100, baseURL, orderID)
}

type UserFinder interface {
	FindUser(ctx context.Context, userID int64) (orders.User, error)
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// MailHandler consumes order.created and mails the admin once per event.
type MailHandler struct {
	Users   UserFinder
	Dedup   Deduper
	Mailer  Mailer
	To      string
	BaseURL string
	Log     *zap.Logger
}

// HandleOrderCreated is installed as the kafka consumer handler.
func (h *MailHandler) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.Log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil // poison message; commit and move on
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	seen, err := h.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}
	username := fmt.Sprintf("user-%d", p.UserID)
	if u, err := h.Users.FindUser(ctx, p.UserID); err == nil {
		username = u.Username
	} else {
		h.Log.Warn("user lookup failed", zap.Int64("user_id", p.UserID), zap.Error(err))
	}

	body := OrderMailBody(p.OrderID, username, p.TotalCents, h.BaseURL)
	if err := h.Mailer.Send(ctx, h.To, newOrderSubject, body); err != nil {
		return fmt.Errorf("send order mail %d: %w", p.OrderID, err)
	}
	h.Log.Info("order notification sent", zap.Int64("order_id", p.OrderID), zap.String("event_id", env.EventID))
	return h.Dedup.Mark(ctx, env.EventID)
}
