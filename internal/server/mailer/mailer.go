// Package mailer renders the onePass email templates and hands the result to
// an SMTP server.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"
)

const (
	TemplateRegister      = "register"
	TemplatePasswordReset = "password_reset"
)

//go:embed templates/*.html
var templateFS embed.FS

// Message is one email to deliver. Data holds the template variables.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Dispatcher delivers a Message. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer turns a Message into an HTML body.
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, now: time.Now}, nil
}

// Render executes the named template. A copyright_text variable is added to
// every message.
func (r *Renderer) Render(msg Message) (string, error) {
	t := r.tmpl.Lookup(msg.Template + ".html")
	if t == nil {
		return "", fmt.Errorf("unknown email template %q", msg.Template)
	}

	data := make(map[string]any, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["copyright_text"] = CopyrightText(r.now())

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", msg.Template, err)
	}
	return buf.String(), nil
}

func CopyrightText(now time.Time) string {
	return fmt.Sprintf("Copyright © %d. FluxTech, All rights reserved.", now.Year())
}
