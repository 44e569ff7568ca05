package alert

import (
	"context"

	gomail "gopkg.in/gomail.v2"
)

// SMTPConfig configures the email sink.
type SMTPConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// EmailSink delivers notifications over SMTP.
type EmailSink struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewEmailSink returns a Sink sending through the given SMTP server.
func NewEmailSink(cfg SMTPConfig) *EmailSink {
	return &EmailSink{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send implements Sink. The context is accepted for interface symmetry;
// gomail does not support cancellation mid-send.
func (s *EmailSink) Send(_ context.Context, subject, body string, critical bool) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", subject)
	if critical {
		m.SetHeader("X-Priority", "1")
		m.SetHeader("Importance", "high")
	}
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}
