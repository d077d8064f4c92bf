package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options son los parámetros comunes que reciben los drivers.
type Options struct {
	HTTPTimeout     time.Duration
	HTTPClient      *http.Client
	PGMaxConns      int32
	PGIdentityTable string
}

// Params es lo que recibe un driver: URL ya parseada y key no vacía.
type Params struct {
	URL     *url.URL
	RawURL  string
	Key     string
	Options Options
}

// DriverFunc construye un conector. No debe hacer I/O obligatoria.
type DriverFunc func(ctx context.Context, p Params) (Connector, error)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]DriverFunc)
)

// RegisterDriver asocia esquemas de URL a un driver. Llamar en init(); duplicados hacen panic.
func RegisterDriver(f DriverFunc, schemes ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range schemes {
		s = strings.ToLower(s)
		if _, exists := drivers[s]; exists {
			panic(fmt.Sprintf("backend: scheme %q already registered", s))
		}
		drivers[s] = f
	}
}

// Schemes lista los esquemas registrados.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for s := range drivers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Connect valida los parámetros y delega en el driver del esquema.
func Connect(ctx context.Context, backendURL, backendKey string, opts Options) (Connector, error) {
	raw := strings.TrimSpace(backendURL)
	key := strings.TrimSpace(backendKey)
	if raw == "" || key == "" {
		return nil, fmt.Errorf("%w: empty url or key", ErrInvalidCredentials)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed url", ErrInvalidCredentials)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || (u.Host == "" && u.Opaque == "") {
		return nil, fmt.Errorf("%w: url needs scheme and host", ErrInvalidCredentials)
	}

	registryMu.RLock()
	f, ok := drivers[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no driver for scheme %q", ErrInvalidCredentials, scheme)
	}

	c, err := f(ctx, Params{URL: u, RawURL: raw, Key: key, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return c, nil
}

// Dialer es la Factory sin cache: un conector nuevo por llamada.
type Dialer struct {
	Options Options
}

func (d Dialer) Connect(ctx context.Context, backendURL, backendKey string) (Connector, error) {
	return Connect(ctx, backendURL, backendKey, d.Options)
}
