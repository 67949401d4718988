package mailer

import (
	"context"

	"github.com/dmitrijs2005/onepass/internal/logging"
)

// LogMailer renders messages and writes them to the log instead of sending
// them. It is used in development when no SMTP server is configured.
type LogMailer struct {
	logger   logging.Logger
	renderer *Renderer
}

func NewLogMailer(logger logging.Logger, renderer *Renderer) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer"), renderer: renderer}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	body, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}
	m.logger.Info(ctx, "email not sent, no SMTP server configured",
		"to", msg.To, "subject", msg.Subject, "template", msg.Template, "link", msg.Data["link"], "bytes", len(body))
	return nil
}
