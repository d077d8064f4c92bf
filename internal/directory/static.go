package directory

import (
	"context"
	"sort"
	"sync"
)

// Static es un directorio en memoria (dev y tests). Cuenta las consultas.
type Static struct {
	mu      sync.RWMutex
	records map[string][]TenantRecord
	calls   int
	err     error
}

func NewStatic(recs ...TenantRecord) *Static {
	s := &Static{records: make(map[string][]TenantRecord)}
	for _, r := range recs {
		s.Add(r)
	}
	return s
}

// Add agrega un registro; agregar dos con el mismo id simula un directorio ambiguo.
func (s *Static) Add(r TenantRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.TenantID] = append(s.records[r.TenantID], r)
}

// Remove borra todos los registros de un tenant.
func (s *Static) Remove(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tenantID)
}

// FailWith hace que las consultas siguientes devuelvan err (nil restablece).
func (s *Static) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) Resolve(ctx context.Context, tenantID string) (*TenantRecord, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	rows := append([]TenantRecord(nil), s.records[tenantID]...)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if _, err := NormalizeID(tenantID); err != nil {
		return nil, err
	}
	return Pick(rows)
}

func (s *Static) List(ctx context.Context) ([]TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TenantRecord, 0, len(s.records))
	for _, rows := range s.records {
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}
