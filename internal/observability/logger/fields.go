package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field evita que los paquetes llamadores importen zap.
type Field = zap.Field

// HTTP

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Route(v string) zap.Field           { return zap.String("route", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func Bytes(v int) zap.Field              { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field       { return zap.String("user_agent", v) }

// Dominio

// TenantID identifica el proyecto/tenant del request.
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// UserID identifica la identidad en el backend del tenant.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email debe pasarse ya enmascarado (util.MaskEmail).
func Email(v string) zap.Field { return zap.String("email", v) }

func Table(v string) zap.Field       { return zap.String("table", v) }
func ConflictKey(v string) zap.Field { return zap.String("conflict_key", v) }
func Schema(v string) zap.Field      { return zap.String("schema", v) }
func Driver(v string) zap.Field      { return zap.String("driver", v) }

// BackendHost nunca incluye credenciales, solo host.
func BackendHost(v string) zap.Field { return zap.String("backend_host", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Bool(k string, v bool) zap.Field {
	return zap.Bool(k, v)
}
func String(k, v string) zap.Field  { return zap.String(k, v) }
func Any(k string, v any) zap.Field { return zap.Any(k, v) }
