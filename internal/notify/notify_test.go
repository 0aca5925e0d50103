package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"gatepass/internal/logging"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestWelcomeMail_EscapesAndAttaches(t *testing.T) {
	m, err := WelcomeMail(Welcome{
		Name: "<Asha>", Email: "asha@example.com", VisitorID: "v1", Institution: "IIT",
		QR: []byte("qr"), Card: []byte("card"),
	})
	require.NoError(t, err)

	assert.Equal(t, "asha@example.com", m.To)
	assert.Contains(t, m.HTML, "&lt;Asha&gt;")
	assert.Contains(t, m.HTML, "with IIT")
	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "qr_code.png", m.Attachments[0].Name)
	assert.Equal(t, "visitor_card.png", m.Attachments[1].Name)

	m, err = WelcomeMail(Welcome{Name: "Ravi", Email: "r@example.com"})
	require.NoError(t, err)
	assert.Empty(t, m.Attachments)
	assert.NotContains(t, m.HTML, " with ")
}

func TestSMTP_Send(t *testing.T) {
	d := &captureDialer{}
	s := &SMTP{dialer: d, from: "gate@example.com"}

	err := s.Send(context.Background(), Mail{
		To: "asha@example.com", Subject: "Your visitor pass", HTML: "<p>hi</p>",
		Attachments: []Attachment{{Name: "qr_code.png", Data: []byte("qr")}},
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	assert.Equal(t, []string{"gate@example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"asha@example.com"}, msg.GetHeader("To"))

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), `filename="qr_code.png"`)
}

func TestSMTP_SendErrors(t *testing.T) {
	s := &SMTP{dialer: &captureDialer{err: errors.New("535 auth failed")}, from: "gate@example.com"}
	err := s.Send(context.Background(), Mail{To: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, Mail{To: "x@example.com"}), context.Canceled)
}

func TestLogOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLogOnly(logging.New(&buf, "text", "info")).Send(context.Background(), Mail{To: "x@example.com", Subject: "s"}))
	assert.Contains(t, buf.String(), "smtp disabled")
}
