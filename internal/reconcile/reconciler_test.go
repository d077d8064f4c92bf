package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userrelay/internal/backend"
	"github.com/dropDatabas3/userrelay/internal/backend/memory"
	"github.com/dropDatabas3/userrelay/internal/directory"
)

const tempPW = "Temp123!"

var tuser = Schema{Name: "default", Table: "TUser", ConflictKey: "UserId"}

type fixture struct {
	dir *directory.Static
	r   *Reconciler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	memory.Reset()
	dir := directory.NewStatic(
		directory.TenantRecord{TenantID: "t1", Name: "Acme", BackendURL: "mem://b1", BackendKey: "k1"},
		directory.TenantRecord{TenantID: "t2", BackendURL: "mem://b2", BackendKey: "k2"},
		directory.TenantRecord{TenantID: "finder", BackendURL: "mem://bf?finder=1", BackendKey: "kf"},
		directory.TenantRecord{TenantID: "broken", BackendURL: "", BackendKey: "x"},
	)
	if opts.TempPassword == "" {
		opts.TempPassword = tempPW
	}
	r, err := New(dir, backend.Dialer{}, opts)
	require.NoError(t, err)
	return &fixture{dir: dir, r: r}
}

func TestUpsert_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	b1 := memory.Open("b1")

	res, err := f.r.Upsert(ctx, Request{
		TenantID: "t1",
		Payload:  map[string]any{"Email": "a@x.com", "NameUser": "A"},
		Schema:   tuser,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NotEmpty(t, res.IdentityID)

	ids := b1.Identities()
	require.Len(t, ids, 1)
	require.Equal(t, "a@x.com", ids[0].Email)
	require.True(t, ids[0].EmailConfirmed)
	pw, _ := b1.Password(res.IdentityID)
	require.Equal(t, tempPW, pw)

	row, ok := b1.Row("TUser", res.IdentityID)
	require.True(t, ok)
	require.Equal(t, map[string]any{"UserId": res.IdentityID, "Email": "a@x.com", "NameUser": "A"}, row)

	// el usuario cambió su contraseña; la siguiente llamada la resetea
	require.NoError(t, mustConn(t, "mem://b1").UpdateIdentityPassword(ctx, res.IdentityID, "Custom!99"))

	res2, err := f.r.Upsert(ctx, Request{
		TenantID: "t1",
		Payload:  map[string]any{"Email": "a@x.com", "NameUser": "A2"},
		Schema:   tuser,
	})
	require.NoError(t, err)
	require.False(t, res2.Created)
	require.Equal(t, res.IdentityID, res2.IdentityID)
	require.Len(t, b1.Identities(), 1)
	pw, _ = b1.Password(res.IdentityID)
	require.Equal(t, tempPW, pw)

	require.Equal(t, 1, b1.Rows("TUser"))
	row, _ = b1.Row("TUser", res.IdentityID)
	require.Equal(t, "A2", row["NameUser"])
}

func TestUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	req := Request{TenantID: "t1", Payload: map[string]any{"correo": "z@x.com", "rol": "admin"}, Schema: Schema{Table: "users", ConflictKey: "id"}}

	a, err := f.r.Upsert(ctx, req)
	require.NoError(t, err)
	b, err := f.r.Upsert(ctx, req)
	require.NoError(t, err)
	require.Equal(t, a.IdentityID, b.IdentityID)
	require.Equal(t, 1, memory.Open("b1").Rows("users"))
}

func TestUpsert_EmailAliases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	var first string
	for _, alias := range []string{"correoElectronico", "Email", "correo", "email"} {
		res, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: map[string]any{alias: "same@x.com"}, Schema: tuser})
		require.NoError(t, err, alias)
		if first == "" {
			first = res.IdentityID
		}
		require.Equal(t, first, res.IdentityID, alias)
	}
	require.Len(t, memory.Open("b1").Identities(), 1)
}

func TestUpsert_AliasPriority(t *testing.T) {
	email, ok := ExtractEmail(map[string]any{
		"email":             "last@x.com",
		"correoElectronico": "first@x.com",
		"Email":             "second@x.com",
	}, DefaultEmailAliases)
	require.True(t, ok)
	require.Equal(t, "first@x.com", email)

	email, ok = ExtractEmail(map[string]any{"correoElectronico": "  ", "Email": 42, "correo": "c@x.com"}, DefaultEmailAliases)
	require.True(t, ok)
	require.Equal(t, "c@x.com", email)
}

func TestUpsert_MissingEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	for _, p := range []map[string]any{nil, {}, {"mail": "a@x.com"}, {"Email": ""}} {
		_, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: p, Schema: tuser})
		require.ErrorIs(t, err, ErrMissingEmail)
		require.Equal(t, KindMissingEmail, KindOf(err))
	}
	require.Zero(t, memory.Open("b1").TotalOps())
}

func TestUpsert_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	payload := map[string]any{"Email": "shared@x.com"}

	r1, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: payload, Schema: tuser})
	require.NoError(t, err)
	r2, err := f.r.Upsert(ctx, Request{TenantID: "t2", Payload: payload, Schema: tuser})
	require.NoError(t, err)

	require.True(t, r1.Created)
	require.True(t, r2.Created)
	require.NotEqual(t, r1.IdentityID, r2.IdentityID)
	require.Len(t, memory.Open("b1").Identities(), 1)
	require.Len(t, memory.Open("b2").Identities(), 1)
	_, leaked := memory.Open("b1").Row("TUser", r2.IdentityID)
	require.False(t, leaked)
}

func TestUpsert_UnknownTenantNoBackendIO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	for _, id := range []string{"nope", ""} {
		_, err := f.r.Upsert(ctx, Request{TenantID: id, Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
		require.ErrorIs(t, err, ErrTenantNotFound)
	}
	require.Zero(t, memory.Open("b1").TotalOps())
	require.Zero(t, memory.Open("b2").TotalOps())
}

func TestUpsert_DirectoryUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	f.dir.FailWith(errors.New("connection refused"))
	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestUpsert_InvalidCredentials(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.r.Upsert(context.Background(), Request{TenantID: "broken", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.ErrorIs(t, err, backend.ErrInvalidCredentials)
}

func TestUpsert_UnopenableSealedKeyIsInvalidCredentials(t *testing.T) {
	memory.Reset()
	inner := directory.NewStatic(directory.TenantRecord{TenantID: "t1", BackendURL: "mem://b1", BackendKeyEnc: "nonce|ct"})
	r, err := New(&directory.Sealed{Inner: inner}, backend.Dialer{}, Options{TempPassword: tempPW})
	require.NoError(t, err)

	_, err = r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotErrorIs(t, err, ErrDirectoryUnavailable)
	require.Zero(t, memory.Open("b1").TotalOps())
}

func TestUpsert_InvalidSchema(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.r.Upsert(context.Background(), Request{
		TenantID: "t1",
		Payload:  map[string]any{"Email": "a@x.com"},
		Schema:   Schema{Table: "users; drop table x", ConflictKey: "id"},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Zero(t, f.dir.Calls())
}

func TestUpsert_ConflictKeyAlwaysIdentity(t *testing.T) {
	f := newFixture(t, Options{})
	res, err := f.r.Upsert(context.Background(), Request{
		TenantID: "t1",
		Payload:  map[string]any{"Email": "a@x.com", "UserId": "spoofed"},
		Schema:   tuser,
	})
	require.NoError(t, err)
	row, ok := memory.Open("b1").Row("TUser", res.IdentityID)
	require.True(t, ok)
	require.Equal(t, res.IdentityID, row["UserId"])
	_, spoofed := memory.Open("b1").Row("TUser", "spoofed")
	require.False(t, spoofed)
}

func TestUpsert_SchemaFieldsFilter(t *testing.T) {
	f := newFixture(t, Options{})
	alt := Schema{Table: "users", ConflictKey: "id", Fields: []string{"correoElectronico", "nombreCompleto"}}
	res, err := f.r.Upsert(context.Background(), Request{
		TenantID: "t1",
		Payload:  map[string]any{"correoElectronico": "a@x.com", "nombreCompleto": "Ana", "isAdmin": true},
		Schema:   alt,
	})
	require.NoError(t, err)
	row, _ := memory.Open("b1").Row("users", res.IdentityID)
	require.Equal(t, map[string]any{"id": res.IdentityID, "correoElectronico": "a@x.com", "nombreCompleto": "Ana"}, row)
}

func TestUpsert_SchemaAliasesOverrideGlobal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	legacy := Schema{
		Name:         "default",
		Table:        "TUser",
		ConflictKey:  "UserId",
		Fields:       []string{"Email", "NameUser"},
		EmailAliases: []string{"Email"},
	}

	// correoElectronico gana en la lista global, pero este schema solo mira Email.
	res, err := f.r.Upsert(ctx, Request{TenantID: "t1", Schema: legacy, Payload: map[string]any{
		"correoElectronico": "a@x.com", "Email": "b@x.com", "NameUser": "B",
	}})
	require.NoError(t, err)
	ids := memory.Open("b1").Identities()
	require.Len(t, ids, 1)
	require.Equal(t, "b@x.com", ids[0].Email)
	row, _ := memory.Open("b1").Row("TUser", res.IdentityID)
	require.Equal(t, "b@x.com", row["Email"])

	alt := Schema{
		Name:         "alt",
		Table:        "users",
		ConflictKey:  "id",
		Fields:       []string{"correoElectronico", "nombreCompleto"},
		EmailAliases: []string{"correoElectronico"},
	}
	_, err = f.r.Upsert(ctx, Request{TenantID: "t1", Schema: alt, Payload: map[string]any{
		"Email": "c@x.com", "nombreCompleto": "C",
	}})
	require.ErrorIs(t, err, ErrMissingEmail)
	require.Zero(t, memory.Open("b1").Rows("users"))
	require.Len(t, memory.Open("b1").Identities(), 1)
}

func TestSchema_AliasMustReachRow(t *testing.T) {
	s := Schema{Table: "users", ConflictKey: "id", Fields: []string{"nombre"}, EmailAliases: []string{"correo"}}
	require.Error(t, s.Validate())

	s.Fields = append(s.Fields, "correo")
	require.NoError(t, s.Validate())

	// sin Fields pasa todo el payload, cualquier alias llega a la fila
	require.NoError(t, Schema{Table: "users", ConflictKey: "id", EmailAliases: []string{"x"}}.Validate())
}

func TestUpsert_PointLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	store := memory.Open("bf")
	seeded := store.Seed("b@x.com", "old")

	res, err := f.r.Upsert(ctx, Request{TenantID: "finder", Payload: map[string]any{"Email": "b@x.com"}, Schema: tuser})
	require.NoError(t, err)
	require.Equal(t, seeded.ID, res.IdentityID)
	require.Equal(t, 1, store.Ops("FindIdentityByEmail"))
	require.Zero(t, store.Ops("ListIdentities"))
}

func TestUpsert_PaginatedScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{ScanPageSize: 2, ScanMaxPages: 10})
	store := memory.Open("b1")
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "target@x.com"} {
		store.Seed(e, "pw")
	}

	res, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: map[string]any{"Email": "target@x.com"}, Schema: tuser})
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, 3, store.Ops("ListIdentities"))
}

func TestUpsert_CaseSensitiveMatch(t *testing.T) {
	f := newFixture(t, Options{})
	store := memory.Open("b1")
	store.Seed("Ana@x.com", "pw")

	res, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "ana@x.com"}, Schema: tuser})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Len(t, store.Identities(), 2)
}

func TestUpsert_ScanBoundExceeded(t *testing.T) {
	f := newFixture(t, Options{ScanPageSize: 1, ScanMaxPages: 2})
	store := memory.Open("b1")
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		store.Seed(e, "pw")
	}
	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "zzz@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, ErrIdentityLookupFailed)
	require.Zero(t, store.Ops("CreateIdentity"), "must not create on an incomplete scan")
}

func TestUpsert_StepFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		op   string
		seed bool
		want error
	}{
		{"ListIdentities", false, ErrIdentityLookupFailed},
		{"CreateIdentity", false, ErrIdentityCreateFailed},
		{"UpdateIdentityPassword", true, ErrIdentityUpdateFailed},
		{"UpsertProfile", false, ErrProfileUpsertFailed},
	}
	for _, c := range cases {
		t.Run(c.op, func(t *testing.T) {
			f := newFixture(t, Options{})
			store := memory.Open("b1")
			if c.seed {
				store.Seed("a@x.com", "pw")
			}
			store.FailOn(c.op, boom)
			_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
			require.ErrorIs(t, err, c.want)
			require.ErrorIs(t, err, boom)
		})
	}
}

func TestUpsert_ProfileFailureKeepsOrphan(t *testing.T) {
	f := newFixture(t, Options{OnProfileFailure: PolicyKeep})
	store := memory.Open("b1")
	store.FailOn("UpsertProfile", errors.New("relation does not exist"))

	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	var re *Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, KindProfileUpsertFailed, re.Kind)
	require.False(t, re.RolledBack)
	require.NotEmpty(t, re.IdentityID)
	require.Len(t, store.Identities(), 1)
}

func TestUpsert_ProfileFailureRollback(t *testing.T) {
	f := newFixture(t, Options{OnProfileFailure: PolicyRollback})
	store := memory.Open("b1")
	store.FailOn("UpsertProfile", errors.New("relation does not exist"))

	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	var re *Error
	require.ErrorAs(t, err, &re)
	require.True(t, re.RolledBack)
	require.Empty(t, store.Identities())
}

func TestUpsert_RollbackNeverTouchesExisting(t *testing.T) {
	f := newFixture(t, Options{OnProfileFailure: PolicyRollback})
	store := memory.Open("b1")
	store.Seed("a@x.com", "pw")
	store.FailOn("UpsertProfile", errors.New("boom"))

	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, ErrProfileUpsertFailed)
	require.Len(t, store.Identities(), 1)
	require.Zero(t, store.Ops("DeleteIdentity"))
}

func TestUpsert_RollbackFailureIsJoined(t *testing.T) {
	f := newFixture(t, Options{OnProfileFailure: PolicyRollback})
	store := memory.Open("b1")
	upsertErr := errors.New("upsert boom")
	deleteErr := errors.New("delete boom")
	store.FailOn("UpsertProfile", upsertErr)
	store.FailOn("DeleteIdentity", deleteErr)

	_, err := f.r.Upsert(context.Background(), Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.ErrorIs(t, err, upsertErr)
	require.ErrorIs(t, err, deleteErr)
	var re *Error
	require.ErrorAs(t, err, &re)
	require.False(t, re.RolledBack)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	alt := Schema{Table: "users", ConflictKey: "id"}
	res, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: map[string]any{"correoElectronico": "a@x.com"}, Schema: alt})
	require.NoError(t, err)

	require.NoError(t, f.r.Delete(ctx, "t1", res.IdentityID))
	store := memory.Open("b1")
	require.Empty(t, store.Identities())
	require.Zero(t, store.Rows("users"))
}

func TestDelete_UnknownUserReportsFailure(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.r.Delete(context.Background(), "t1", "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrIdentityDeleteFailed)
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestDelete_Failures(t *testing.T) {
	f := newFixture(t, Options{})
	require.ErrorIs(t, f.r.Delete(context.Background(), "t1", " "), ErrInvalidRequest)
	require.ErrorIs(t, f.r.Delete(context.Background(), "ghost", "u1"), ErrTenantNotFound)

	store := memory.Open("b1")
	id := store.Seed("a@x.com", "pw")
	store.FailOn("DeleteProfile", errors.New("boom"))
	err := f.r.Delete(context.Background(), "t1", id.ID)
	require.ErrorIs(t, err, ErrProfileDeleteFailed)
	require.Zero(t, store.Ops("DeleteIdentity"), "identity delete is not attempted")
	require.Len(t, store.Identities(), 1)
}

func TestDelete_CustomTable(t *testing.T) {
	f := newFixture(t, Options{DeleteTable: "TUser", DeleteIDColumn: "UserId"})
	ctx := context.Background()
	res, err := f.r.Upsert(ctx, Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	require.NoError(t, err)
	require.NoError(t, f.r.Delete(ctx, "t1", res.IdentityID))
	require.Zero(t, memory.Open("b1").Rows("TUser"))
}

type chanNotifier struct {
	mu  sync.Mutex
	got []Welcome
	err error
}

func (n *chanNotifier) NotifyCreated(_ context.Context, w Welcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, w)
	return n.err
}

func TestUpsert_NotifiesOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	n := &chanNotifier{err: errors.New("smtp down")}
	f := newFixture(t, Options{Notifier: n})

	req := Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser}
	_, err := f.r.Upsert(ctx, req)
	require.NoError(t, err, "notifier failure does not fail the request")
	_, err = f.r.Upsert(ctx, req)
	require.NoError(t, err)
	f.r.Wait()

	require.Len(t, n.got, 1)
	require.Equal(t, "a@x.com", n.got[0].Email)
	require.Equal(t, "Acme", n.got[0].TenantName)
	require.Equal(t, tempPW, n.got[0].TempPassword)
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) ObserveReconcile(op, result string, kind Kind, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, strings.Join([]string{op, result, string(kind)}, "/"))
}

func TestRecorder(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, Options{Recorder: rec})
	ctx := context.Background()
	_, _ = f.r.Upsert(ctx, Request{TenantID: "t1", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	_, _ = f.r.Upsert(ctx, Request{TenantID: "zz", Payload: map[string]any{"Email": "a@x.com"}, Schema: tuser})
	_ = f.r.Delete(ctx, "t1", "missing")
	require.Equal(t, []string{"upsert/ok/", "upsert/error/TenantNotFound", "delete/error/IdentityDeleteFailed"}, rec.seen)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, backend.Dialer{}, Options{TempPassword: "x"})
	require.Error(t, err)
	_, err = New(directory.NewStatic(), backend.Dialer{}, Options{})
	require.Error(t, err)
	_, err = New(directory.NewStatic(), backend.Dialer{}, Options{TempPassword: "x", OnProfileFailure: "retry"})
	require.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	e := fail(KindProfileUpsertFailed, "upsert", "t1", errors.New("boom"))
	require.Equal(t, "reconcile upsert tenant=t1: ProfileUpsertFailed: boom", e.Error())
	require.Equal(t, Kind(""), KindOf(errors.New("other")))
	require.Equal(t, KindMissingEmail, KindOf(ErrMissingEmail))
}

func mustConn(t *testing.T, url string) backend.Connector {
	t.Helper()
	c, err := backend.Connect(context.Background(), url, "k", backend.Options{})
	require.NoError(t, err)
	return c
}
