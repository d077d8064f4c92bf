package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/userrelay/internal/config"
)

// Factory construye un Directory a partir de su sección de config.
type Factory func(ctx context.Context, cfg config.DirectoryConfig) (Directory, error)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Factory)
)

// RegisterDriver se llama en init() de cada driver. Duplicados hacen panic.
func RegisterDriver(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("directory: driver %q already registered", name))
	}
	drivers[name] = f
}

// Drivers lista los drivers registrados, ordenados.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open abre el driver indicado en cfg.Driver.
func Open(ctx context.Context, cfg config.DirectoryConfig) (Directory, error) {
	registryMu.RLock()
	f, ok := drivers[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("directory: driver %q not registered (have %v)", cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}
