package reconcile

import "context"

// Welcome es lo que recibe el Notifier tras crear una identidad.
type Welcome struct {
	TenantID     string
	TenantName   string
	IdentityID   string
	Email        string
	TempPassword string
	Payload      map[string]any
}

// Notifier avisa al usuario recién creado. Sus fallas se loguean y no afectan el resultado.
type Notifier interface {
	NotifyCreated(ctx context.Context, w Welcome) error
}

// Recorder recibe una observación por operación (métricas).
type Recorder interface {
	ObserveReconcile(op, result string, kind Kind, seconds float64)
}
