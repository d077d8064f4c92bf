// Package notify envía el mail de bienvenida cuando se crea una identidad.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
	"github.com/dropDatabas3/userrelay/internal/reconcile"
	"github.com/dropDatabas3/userrelay/internal/util"
)

// sender es la parte de *mail.Dialer que usamos; en tests se reemplaza.
type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP implementa reconcile.Notifier con go-mail.
type SMTP struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	LoginURL           string

	tpl  *Templates
	dial func(timeout time.Duration) sender
}

var _ reconcile.Notifier = (*SMTP)(nil)

func FromConfig(cfg config.Config) (*SMTP, error) {
	tpl, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	s := &SMTP{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		From:               cfg.SMTP.From,
		User:               cfg.SMTP.Username,
		Pass:               cfg.SMTP.Password,
		TLSMode:            cfg.SMTP.TLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		LoginURL:           cfg.SMTP.LoginURL,
		tpl:                tpl,
	}
	if s.TLSMode == "" {
		s.TLSMode = "auto"
	}
	s.dial = s.dialer
	return s, nil
}

func (s *SMTP) dialer(timeout time.Duration) sender {
	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify, // solo dev
	}
	if timeout > 0 {
		d.Timeout = timeout
	}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto": STARTTLS si el server lo ofrece
	}
	return d
}

// Message arma el mail (texto + html) sin enviarlo.
func (s *SMTP) Message(w reconcile.Welcome) (*mail.Message, error) {
	vars := WelcomeVars{
		Email:        w.Email,
		Tenant:       w.TenantName,
		TempPassword: w.TempPassword,
		LoginURL:     s.LoginURL,
	}
	if vars.Tenant == "" {
		vars.Tenant = w.TenantID
	}
	var txt, html bytes.Buffer
	if err := s.tpl.WelcomeTXT.Execute(&txt, vars); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	if err := s.tpl.WelcomeHTML.Execute(&html, vars); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", w.Email)
	m.SetHeader("Subject", fmt.Sprintf("Tu cuenta en %s", vars.Tenant))
	m.SetBody("text/plain", txt.String())
	m.AddAlternative("text/html", html.String())
	return m, nil
}

func (s *SMTP) NotifyCreated(ctx context.Context, w reconcile.Welcome) error {
	log := logger.From(ctx).With(
		logger.Component("notify.smtp"),
		logger.String("host", s.Host),
		logger.TenantID(w.TenantID),
		logger.Email(util.MaskEmail(w.Email)),
	)
	if w.Email == "" {
		return errors.New("notify: empty recipient")
	}
	m, err := s.Message(w)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var timeout time.Duration
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := s.dial(timeout).DialAndSend(m); err != nil {
		d := Diagnose(err)
		log.Error("smtp send failed", logger.String("smtp_code", d.Code), logger.Bool("temporary", d.Temporary), logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("welcome email sent")
	return nil
}
