package notify

import (
	"errors"
	"net"
	"strings"
)

// Diag clasifica un error SMTP para el log.
type Diag struct {
	Code      string // auth|tls|dial|timeout|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool
}

func Diagnose(err error) Diag {
	if err == nil {
		return Diag{Code: "unknown"}
	}
	s := strings.ToLower(err.Error())

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Diag{Code: "timeout", Temporary: true}
	}
	switch {
	case strings.Contains(s, "timeout"):
		return Diag{Code: "timeout", Temporary: true}
	case strings.Contains(s, "connection refused"), strings.Contains(s, "no such host"), strings.Contains(s, "dial tcp"):
		return Diag{Code: "dial", Temporary: true}
	case strings.Contains(s, "x509:"), strings.Contains(s, "tls") && strings.Contains(s, "handshake"):
		return Diag{Code: "tls"}
	case strings.Contains(s, "535"), strings.Contains(s, "5.7.8"), strings.Contains(s, "authentication failed"):
		return Diag{Code: "auth"}
	case strings.Contains(s, "421"), strings.Contains(s, "451"), strings.Contains(s, "4.7.0"), strings.Contains(s, "try again later"):
		return Diag{Code: "rate_limited", Temporary: true}
	case strings.Contains(s, "5.1.1"), strings.Contains(s, "user unknown"), strings.Contains(s, "mailbox not found"):
		return Diag{Code: "invalid_recipient"}
	case strings.Contains(s, "5.7.1"), strings.Contains(s, "message rejected"):
		return Diag{Code: "rejected"}
	}
	if ne != nil {
		return Diag{Code: "network", Temporary: true}
	}
	return Diag{Code: "unknown"}
}
