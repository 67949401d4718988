package mailer

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// sender is the part of *gomail.Dialer used here.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds SMTP settings for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends rendered templates through an SMTP server. Port 465
// uses implicit TLS, other ports upgrade with STARTTLS when offered.
type SMTPMailer struct {
	cfg      SMTPConfig
	dialer   sender
	renderer *Renderer
}

func NewSMTPMailer(cfg SMTPConfig, renderer *Renderer) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("missing SMTP host")
	}
	if cfg.Port == 0 {
		return nil, errors.New("missing SMTP port")
	}
	if cfg.From == "" {
		return nil, errors.New("missing sender address")
	}

	return &SMTPMailer{
		cfg:      cfg,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		renderer: renderer,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}

	gm := gomail.NewMessage()
	if m.cfg.FromName != "" {
		gm.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	} else {
		gm.SetHeader("From", m.cfg.From)
	}
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", body)

	// gomail has no context support; stop waiting once ctx is done.
	errc := make(chan error, 1)
	go func() { errc <- m.dialer.DialAndSend(gm) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
