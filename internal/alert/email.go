package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/pkg/config"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// Notifier delivers trade alerts. Entry alerts fire when a spread order
// confirms filled; exit alerts when the monitor closes a position.
type Notifier interface {
	NotifyEntry(ctx context.Context, p contracts.Position) error
	NotifyExit(ctx context.Context, event contracts.ExitEvent) error
}

// sendFunc matches smtp.SendMail, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Emailer sends plain-text trade alerts over SMTP.
type Emailer struct {
	cfg    config.AlertConfig
	logger *logger.Logger
	send   sendFunc
}

// NewEmailer creates an SMTP notifier from the alert configuration.
func NewEmailer(cfg config.AlertConfig, log *logger.Logger) *Emailer {
	return &Emailer{
		cfg:    cfg,
		logger: log,
		send:   smtp.SendMail,
	}
}

// NotifyEntry emails a summary of a freshly opened spread.
func (e *Emailer) NotifyEntry(_ context.Context, p contracts.Position) error {
	subject := fmt.Sprintf("Spread entered: %s %s", p.Symbol, p.Direction)
	body := fmt.Sprintf(
		"Symbol:      %s\n"+
			"Direction:   %s\n"+
			"Long leg:    %.2f %s\n"+
			"Short leg:   %.2f %s\n"+
			"Quantity:    %d\n"+
			"Debit:       $%.2f\n"+
			"Underlying:  %.2f\n"+
			"ATR:         %.2f\n"+
			"Entered at:  %s\n",
		p.Symbol, p.Direction,
		p.Long.Strike, p.Long.Right,
		p.Short.Strike, p.Short.Right,
		p.Quantity, p.EntryDebit,
		p.EntryPrice, p.EntryATR,
		p.EntryDate.Format(time.RFC3339),
	)
	return e.deliver(subject, body)
}

// NotifyExit emails the exit outcome, flagging partial closes that need
// manual attention.
func (e *Emailer) NotifyExit(_ context.Context, event contracts.ExitEvent) error {
	subject := fmt.Sprintf("Spread exited: %s (%s)", event.Symbol, event.Reason)
	if event.Partial {
		subject = fmt.Sprintf("ACTION REQUIRED, partial close: %s (%s)", event.Symbol, event.Reason)
	}
	body := fmt.Sprintf(
		"Symbol:       %s\n"+
			"Direction:    %s\n"+
			"Reason:       %s\n"+
			"Entry price:  %.2f\n"+
			"Exit price:   %.2f\n"+
			"Partial:      %t\n"+
			"Triggered at: %s\n",
		event.Symbol, event.Direction, event.Reason,
		event.EntryPrice, event.CurrentPrice, event.Partial,
		event.TriggeredAt.Format(time.RFC3339),
	)
	return e.deliver(subject, body)
}

func (e *Emailer) deliver(subject, body string) error {
	if !e.cfg.Enabled {
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.cfg.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", e.cfg.Server, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.From, e.cfg.Password, e.cfg.Server)

	if err := e.send(addr, auth, e.cfg.From, []string{e.cfg.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	e.logger.WithField("subject", subject).Debug("Alert email sent")
	return nil
}

// Noop discards every alert. Used when email alerts are disabled.
type Noop struct{}

func (Noop) NotifyEntry(context.Context, contracts.Position) error { return nil }
func (Noop) NotifyExit(context.Context, contracts.ExitEvent) error { return nil }

// FromConfig returns the configured notifier, or a Noop when alerts are
// off.
func FromConfig(cfg config.AlertConfig, log *logger.Logger) Notifier {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewEmailer(cfg, log)
}
