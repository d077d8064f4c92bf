// Package memory es un backend en proceso para desarrollo y tests.
//
// Cada nombre en mem://<nombre> es un backend aislado compartido por todos los
// conectores que lo abran. mem://<nombre>?finder=1 expone búsqueda puntual por email.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/userrelay/internal/backend"
)

func init() {
	backend.RegisterDriver(func(_ context.Context, p backend.Params) (backend.Connector, error) {
		name := p.URL.Host
		if name == "" {
			name = p.URL.Opaque
		}
		s := Open(name)
		if want := s.requiredKey(); want != "" && want != p.Key {
			return nil, fmt.Errorf("memory: key rejected for %q", name)
		}
		c := &conn{store: s}
		if p.URL.Query().Get("finder") == "1" {
			return &finderConn{conn: c}, nil
		}
		return c, nil
	}, "mem")
}

var (
	storesMu sync.Mutex
	stores   = map[string]*Store{}
)

// Open devuelve (creando si hace falta) el backend con ese nombre.
func Open(name string) *Store {
	storesMu.Lock()
	defer storesMu.Unlock()
	s, ok := stores[name]
	if !ok {
		s = newStore()
		stores[name] = s
	}
	return s
}

// Reset olvida todos los backends (tests).
func Reset() {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores = map[string]*Store{}
}

type identity struct {
	backend.Identity
	Password string
}

// Store es el estado de un backend: identidades y tablas de perfiles.
type Store struct {
	mu         sync.Mutex
	identities []*identity
	tables     map[string]map[string]map[string]any // tabla -> clave -> fila
	key        string
	failures   map[string]error
	ops        map[string]int
	closed     int
}

func newStore() *Store {
	return &Store{
		tables:   map[string]map[string]map[string]any{},
		failures: map[string]error{},
		ops:      map[string]int{},
	}
}

// RequireKey hace que solo se acepten conexiones con esta key.
func (s *Store) RequireKey(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = k
}

func (s *Store) requiredKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// FailOn hace fallar la operación op (nombre del método) con err. nil la restablece.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Ops cuenta cuántas veces se invocó op.
func (s *Store) Ops(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[op]
}

// TotalOps suma todas las operaciones.
func (s *Store) TotalOps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.ops {
		n += v
	}
	return n
}

// Closed cuenta los Close recibidos.
func (s *Store) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Seed agrega una identidad existente (tests).
func (s *Store) Seed(email, password string) backend.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.insert(email, password, true)
	return id.Identity
}

// Identities es una copia de las identidades, en orden de creación.
func (s *Store) Identities() []backend.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Identity, 0, len(s.identities))
	for _, i := range s.identities {
		out = append(out, i.Identity)
	}
	return out
}

// Password devuelve la contraseña vigente de una identidad.
func (s *Store) Password(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.byID(id); i != nil {
		return i.Password, true
	}
	return "", false
}

// Row devuelve una copia de la fila table[key].
func (s *Store) Row(table, key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tables[table][key]
	if !ok {
		return nil, false
	}
	return clone(r), true
}

// Rows cuenta las filas de table.
func (s *Store) Rows(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// record cuenta op y devuelve la falla inyectada; requiere s.mu tomado.
func (s *Store) record(op string) error {
	s.ops[op]++
	return s.failures[op]
}

func (s *Store) insert(email, password string, confirmed bool) *identity {
	i := &identity{
		Identity: backend.Identity{
			ID:             uuid.NewString(),
			Email:          email,
			EmailConfirmed: confirmed,
			CreatedAt:      time.Now().UTC(),
		},
		Password: password,
	}
	s.identities = append(s.identities, i)
	return i
}

func (s *Store) byID(id string) *identity {
	for _, i := range s.identities {
		if i.ID == id {
			return i
		}
	}
	return nil
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// conn implementa backend.Connector sobre un Store.
type conn struct {
	store *Store
}

func (c *conn) ListIdentities(ctx context.Context, page, perPage int) ([]backend.Identity, bool, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListIdentities"); err != nil {
		return nil, false, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	start := (page - 1) * perPage
	if start >= len(s.identities) {
		return nil, false, nil
	}
	end := start + perPage
	if end > len(s.identities) {
		end = len(s.identities)
	}
	out := make([]backend.Identity, 0, end-start)
	for _, i := range s.identities[start:end] {
		out = append(out, i.Identity)
	}
	return out, end < len(s.identities), nil
}

func (c *conn) CreateIdentity(ctx context.Context, email, password string, confirmed bool) (backend.Identity, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateIdentity"); err != nil {
		return backend.Identity{}, err
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return backend.Identity{}, fmt.Errorf("memory: email and password are required")
	}
	return s.insert(email, password, confirmed).Identity, nil
}

func (c *conn) UpdateIdentityPassword(ctx context.Context, id, password string) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateIdentityPassword"); err != nil {
		return err
	}
	i := s.byID(id)
	if i == nil {
		return backend.ErrNotFound
	}
	i.Password = password
	return nil
}

func (c *conn) DeleteIdentity(ctx context.Context, id string) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteIdentity"); err != nil {
		return err
	}
	for n, i := range s.identities {
		if i.ID == id {
			s.identities = append(s.identities[:n], s.identities[n+1:]...)
			return nil
		}
	}
	return backend.ErrNotFound
}

func (c *conn) UpsertProfile(ctx context.Context, table, conflictKey string, record map[string]any) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpsertProfile"); err != nil {
		return err
	}
	kv, ok := record[conflictKey]
	if !ok {
		return fmt.Errorf("memory: record has no %q", conflictKey)
	}
	rows, ok := s.tables[table]
	if !ok {
		rows = map[string]map[string]any{}
		s.tables[table] = rows
	}
	k := fmt.Sprint(kv)
	row, ok := rows[k]
	if !ok {
		row = map[string]any{}
		rows[k] = row
	}
	// merge-duplicates: columnas ausentes conservan su valor
	for col, v := range record {
		row[col] = v
	}
	return nil
}

func (c *conn) DeleteProfile(ctx context.Context, table, idColumn, id string) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteProfile"); err != nil {
		return err
	}
	rows := s.tables[table]
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if fmt.Sprint(rows[k][idColumn]) == id {
			delete(rows, k)
		}
	}
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Ping")
}

func (c *conn) Close() error {
	s := c.store
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

type finderConn struct {
	*conn
}

func (c *finderConn) FindIdentityByEmail(ctx context.Context, email string) (*backend.Identity, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindIdentityByEmail"); err != nil {
		return nil, err
	}
	for _, i := range s.identities {
		if i.Email == email {
			out := i.Identity
			return &out, nil
		}
	}
	return nil, nil
}
