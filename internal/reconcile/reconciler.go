// Package reconcile provisiona usuarios en el backend de cada tenant:
// resuelve el tenant en el directorio, conecta a su backend, busca o crea la
// identidad (reseteando la contraseña temporal) y hace upsert del perfil.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/userrelay/internal/backend"
	"github.com/dropDatabas3/userrelay/internal/directory"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
	"github.com/dropDatabas3/userrelay/internal/util"
)

// Policy decide qué pasa con una identidad recién creada si falla el perfil.
type Policy string

const (
	// PolicyKeep deja la identidad huérfana y la informa en el error.
	PolicyKeep Policy = "keep"
	// PolicyRollback borra la identidad creada en esta llamada. Nunca toca identidades previas.
	PolicyRollback Policy = "rollback"
)

type Options struct {
	TempPassword     string
	EmailAliases     []string
	ScanPageSize     int
	ScanMaxPages     int
	OnProfileFailure Policy
	DeleteTable      string
	DeleteIDColumn   string

	// Notifier y Recorder son opcionales.
	Notifier      Notifier
	NotifyTimeout time.Duration
	Recorder      Recorder
}

type Reconciler struct {
	dir     directory.Directory
	factory backend.Factory
	opts    Options
	notify  sync.WaitGroup
}

type Request struct {
	TenantID string
	Payload  map[string]any
	Schema   Schema
}

type Result struct {
	IdentityID string
	Created    bool
}

func New(dir directory.Directory, factory backend.Factory, opts Options) (*Reconciler, error) {
	if dir == nil || factory == nil {
		return nil, errors.New("reconcile: directory and backend factory are required")
	}
	if opts.TempPassword == "" {
		return nil, errors.New("reconcile: temp password is required")
	}
	if len(opts.EmailAliases) == 0 {
		opts.EmailAliases = DefaultEmailAliases
	}
	if opts.ScanPageSize <= 0 {
		opts.ScanPageSize = 1000
	}
	if opts.ScanMaxPages <= 0 {
		opts.ScanMaxPages = 50
	}
	switch opts.OnProfileFailure {
	case "":
		opts.OnProfileFailure = PolicyKeep
	case PolicyKeep, PolicyRollback:
	default:
		return nil, fmt.Errorf("reconcile: unknown profile failure policy %q", opts.OnProfileFailure)
	}
	if opts.DeleteTable == "" {
		opts.DeleteTable = "users"
	}
	if opts.DeleteIDColumn == "" {
		opts.DeleteIDColumn = "id"
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &Reconciler{dir: dir, factory: factory, opts: opts}, nil
}

// Upsert crea o actualiza identidad y perfil de un usuario en el backend del tenant.
func (r *Reconciler) Upsert(ctx context.Context, req Request) (res Result, err error) {
	const op = "upsert"
	start := time.Now()
	defer func() { r.observe(op, start, err) }()

	if verr := req.Schema.Validate(); verr != nil {
		return Result{}, fail(KindInvalidRequest, op, req.TenantID, verr)
	}

	rec, conn, err := r.connect(ctx, op, req.TenantID)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	res, err = r.Reconcile(ctx, conn, req)
	if err == nil && res.Created {
		r.welcome(ctx, rec, res.IdentityID, req.Payload)
	}
	return res, err
}

// Delete borra el perfil (tabla de borrado configurada) y luego la identidad.
// Si el primer paso falla el segundo no se intenta; no hay deshacer.
func (r *Reconciler) Delete(ctx context.Context, tenantID, userID string) (err error) {
	const op = "delete"
	start := time.Now()
	defer func() { r.observe(op, start, err) }()

	if strings.TrimSpace(userID) == "" {
		return fail(KindInvalidRequest, op, tenantID, errors.New("empty user id"))
	}

	_, conn, err := r.connect(ctx, op, tenantID)
	if err != nil {
		return err
	}
	defer conn.Close()

	return r.ReconcileDelete(ctx, conn, tenantID, userID)
}

func (r *Reconciler) connect(ctx context.Context, op, tenantID string) (*directory.TenantRecord, backend.Connector, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Reconciler."+op), logger.TenantID(tenantID))

	rec, err := r.dir.Resolve(ctx, tenantID)
	if err != nil {
		if errors.Is(err, directory.ErrTenantNotFound) {
			return nil, nil, fail(KindTenantNotFound, op, tenantID, err)
		}
		if errors.Is(err, directory.ErrSealedKey) {
			log.Warn("tenant backend key cannot be unsealed", logger.Err(err))
			return nil, nil, fail(KindInvalidCredentials, op, tenantID, err)
		}
		if !errors.Is(err, context.Canceled) {
			log.Warn("directory lookup failed", logger.Err(err))
		}
		return nil, nil, fail(KindDirectoryUnavailable, op, tenantID, err)
	}

	conn, err := r.factory.Connect(ctx, rec.BackendURL, rec.BackendKey)
	if err != nil {
		log.Warn("backend connect failed",
			logger.BackendHost(util.HostOf(rec.BackendURL)), logger.Err(err))
		return nil, nil, fail(KindInvalidCredentials, op, tenantID, err)
	}
	return rec, conn, nil
}

// Reconcile es el pipeline sobre un conector ya abierto:
// email → buscar identidad → crear | resetear contraseña → upsert de perfil.
func (r *Reconciler) Reconcile(ctx context.Context, conn backend.Connector, req Request) (Result, error) {
	const op = "upsert"
	tenant := req.TenantID
	log := logger.From(ctx).With(
		logger.Layer("service"), logger.Op("Reconciler.Reconcile"),
		logger.TenantID(tenant), logger.Table(req.Schema.Table))

	if err := req.Schema.Validate(); err != nil {
		return Result{}, fail(KindInvalidRequest, op, tenant, err)
	}
	aliases := req.Schema.aliases(r.opts.EmailAliases)
	email, ok := ExtractEmail(req.Payload, aliases)
	if !ok {
		return Result{}, fail(KindMissingEmail, op, tenant,
			fmt.Errorf("none of %s present", strings.Join(aliases, ", ")))
	}
	log = log.With(logger.Email(util.MaskEmail(email)))

	existing, err := r.findIdentity(ctx, conn, email)
	if err != nil {
		return Result{}, fail(KindIdentityLookupFailed, op, tenant, err)
	}

	var res Result
	if existing == nil {
		id, err := conn.CreateIdentity(ctx, email, r.opts.TempPassword, true)
		if err != nil {
			return Result{}, fail(KindIdentityCreateFailed, op, tenant, err)
		}
		res = Result{IdentityID: id.ID, Created: true}
		log.Info("identity created", logger.UserID(id.ID))
	} else {
		if err := conn.UpdateIdentityPassword(ctx, existing.ID, r.opts.TempPassword); err != nil {
			e := fail(KindIdentityUpdateFailed, op, tenant, err)
			e.IdentityID = existing.ID
			return Result{}, e
		}
		res = Result{IdentityID: existing.ID}
		log.Debug("identity password reset", logger.UserID(existing.ID))
	}

	record := req.Schema.Record(req.Payload, res.IdentityID)
	if err := conn.UpsertProfile(ctx, req.Schema.Table, req.Schema.ConflictKey, record); err != nil {
		return Result{}, r.profileFailed(ctx, conn, tenant, res, err)
	}
	return res, nil
}

func (r *Reconciler) profileFailed(ctx context.Context, conn backend.Connector, tenant string, res Result, cause error) error {
	log := logger.From(ctx).With(logger.Op("Reconciler.Reconcile"), logger.TenantID(tenant), logger.UserID(res.IdentityID))
	e := fail(KindProfileUpsertFailed, "upsert", tenant, cause)
	e.IdentityID = res.IdentityID

	if !res.Created || r.opts.OnProfileFailure != PolicyRollback {
		if res.Created {
			log.Warn("profile upsert failed; identity left without profile", logger.Err(cause))
		}
		return e
	}
	if rbErr := conn.DeleteIdentity(ctx, res.IdentityID); rbErr != nil {
		log.Error("profile upsert failed and identity rollback failed", logger.Err(rbErr))
		e.Err = errors.Join(cause, fmt.Errorf("rollback identity %s: %w", res.IdentityID, rbErr))
		return e
	}
	log.Warn("profile upsert failed; created identity rolled back", logger.Err(cause))
	e.RolledBack = true
	return e
}

// findIdentity prefiere la búsqueda puntual; si no existe, recorre páginas hasta ScanMaxPages.
func (r *Reconciler) findIdentity(ctx context.Context, conn backend.Connector, email string) (*backend.Identity, error) {
	if f, ok := backend.AsFinder(conn); ok {
		return f.FindIdentityByEmail(ctx, email)
	}
	for page := 1; page <= r.opts.ScanMaxPages; page++ {
		ids, more, err := conn.ListIdentities(ctx, page, r.opts.ScanPageSize)
		if err != nil {
			return nil, err
		}
		for i := range ids {
			if ids[i].Email == email {
				return &ids[i], nil
			}
		}
		if !more {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("identity scan exceeded %d pages of %d", r.opts.ScanMaxPages, r.opts.ScanPageSize)
}

// ReconcileDelete borra perfil e identidad sobre un conector abierto.
func (r *Reconciler) ReconcileDelete(ctx context.Context, conn backend.Connector, tenantID, userID string) error {
	const op = "delete"
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Reconciler.Delete"),
		logger.TenantID(tenantID), logger.UserID(userID))

	if err := conn.DeleteProfile(ctx, r.opts.DeleteTable, r.opts.DeleteIDColumn, userID); err != nil {
		e := fail(KindProfileDeleteFailed, op, tenantID, err)
		e.IdentityID = userID
		return e
	}
	if err := conn.DeleteIdentity(ctx, userID); err != nil {
		e := fail(KindIdentityDeleteFailed, op, tenantID, err)
		e.IdentityID = userID
		return e
	}
	log.Info("user deleted")
	return nil
}

func (r *Reconciler) welcome(ctx context.Context, rec *directory.TenantRecord, identityID string, payload map[string]any) {
	n := r.opts.Notifier
	if n == nil {
		return
	}
	email, _ := ExtractEmail(payload, r.opts.EmailAliases)
	w := Welcome{
		TenantID:     rec.TenantID,
		TenantName:   rec.Name,
		IdentityID:   identityID,
		Email:        email,
		TempPassword: r.opts.TempPassword,
		Payload:      payload,
	}
	log := logger.From(ctx)
	nctx, cancel := context.WithTimeout(logger.ToContext(context.WithoutCancel(ctx), log), r.opts.NotifyTimeout)
	r.notify.Add(1)
	go func() {
		defer r.notify.Done()
		defer cancel()
		if err := n.NotifyCreated(nctx, w); err != nil {
			log.Warn("welcome notification failed", logger.UserID(identityID), logger.Err(err))
		}
	}()
}

// Wait espera las notificaciones en curso (shutdown y tests).
func (r *Reconciler) Wait() { r.notify.Wait() }

func (r *Reconciler) observe(op string, start time.Time, err error) {
	if r.opts.Recorder == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.opts.Recorder.ObserveReconcile(op, result, KindOf(err), time.Since(start).Seconds())
}
