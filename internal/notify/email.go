package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"

	"quickbite/internal/config"
	"quickbite/internal/domain"
)

// EmailSender delivers the optional transactional email channel over plain
// SMTP. Recipient is the customer's address.
type EmailSender struct {
	addr string
	from string
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{addr: cfg.Addr, from: cfg.From}
}

func (s *EmailSender) Send(ctx context.Context, _ domain.ChannelKind, recipient string, payload []byte) error {
	var ev domain.NotificationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode notification payload: %w", err)
	}

	subject, body := renderEmail(ev)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		s.from, recipient, subject, body)

	if err := smtp.SendMail(s.addr, nil, s.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", recipient, err)
	}
	return nil
}

func renderEmail(ev domain.NotificationEvent) (subject, body string) {
	switch ev.Type {
	case domain.EventOrderConfirmed:
		return "Order confirmation - QuickBite",
			fmt.Sprintf("Your order at table %s has been received. Total: %d.", ev.TableCode, ev.Total)
	case domain.EventOrderStatusChanged:
		return "Order update - QuickBite",
			fmt.Sprintf("Your order at table %s is now %s.", ev.TableCode, ev.Status)
	default:
		return "QuickBite notification", fmt.Sprintf("Order %s: %s.", ev.OrderID, ev.Status)
	}
}
