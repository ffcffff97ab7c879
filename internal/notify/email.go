package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/resend/resend-go/v2"
)

// LogNotifier logs alerts instead of sending them — used in ENV=local and
// whenever no alert address is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, m *domain.Monitor, hb *domain.Heartbeat) error {
	n.logger.Info("alert (local dev)",
		"monitor_id", m.ID, "monitor", m.Name, "status", hb.Status.String(), "msg", hb.Msg)
	return nil
}

// EmailNotifier sends alerts via the Resend API — used in staging/production.
type EmailNotifier struct {
	client *resend.Client
	from   string
	to     string
}

func NewEmailNotifier(apiKey, from, to string) *EmailNotifier {
	return &EmailNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, m *domain.Monitor, hb *domain.Heartbeat) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: alertSubject(m, hb),
		Text:    alertBody(m, hb),
	}
	_, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
