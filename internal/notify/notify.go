// Package notify sends visitor emails over SMTP.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"gopkg.in/gomail.v2"

	"gatepass/internal/logging"
)

type Attachment struct {
	Name string
	Data []byte
}

type Mail struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Sender interface {
	Send(ctx context.Context, m Mail) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP delivers mail through an SMTP relay.
type SMTP struct {
	dialer dialer
	from   string
}

func NewSMTP(host string, port int, username, password, from string) *SMTP {
	return &SMTP{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (s *SMTP) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	for _, a := range m.Attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

// LogOnly records mail instead of sending it. Used when SMTP is not configured.
type LogOnly struct {
	log logging.Logger
}

func NewLogOnly(log logging.Logger) *LogOnly {
	return &LogOnly{log: log}
}

func (l *LogOnly) Send(ctx context.Context, m Mail) error {
	l.log.Info(ctx, "email not sent, smtp disabled", "to", m.To, "subject", m.Subject, "attachments", len(m.Attachments))
	return nil
}

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<html><body>
<h2>Welcome, {{.Name}}!</h2>
<p>You are registered{{if .Institution}} with {{.Institution}}{{end}}.</p>
<p>Your visitor card and QR code are attached. Show the QR code at the gate on every visit.</p>
<p>Visitor ID: <code>{{.VisitorID}}</code></p>
</body></html>`))

type Welcome struct {
	Name        string
	Email       string
	VisitorID   string
	Institution string
	QR          []byte
	Card        []byte
}

// WelcomeMail builds the registration email with the QR code and card attached.
func WelcomeMail(w Welcome) (Mail, error) {
	var body bytes.Buffer
	if err := welcomeTmpl.Execute(&body, w); err != nil {
		return Mail{}, fmt.Errorf("render welcome email: %w", err)
	}
	m := Mail{To: w.Email, Subject: "Your visitor pass", HTML: body.String()}
	if len(w.QR) > 0 {
		m.Attachments = append(m.Attachments, Attachment{Name: "qr_code.png", Data: w.QR})
	}
	if len(w.Card) > 0 {
		m.Attachments = append(m.Attachments, Attachment{Name: "visitor_card.png", Data: w.Card})
	}
	return m, nil
}
