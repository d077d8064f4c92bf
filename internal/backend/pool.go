package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/userrelay/internal/observability/logger"
)

// Pool reutiliza conectores por (url, key) y cierra los que quedan ociosos más de idleTTL.
// Solo guarda conexiones: las credenciales se siguen resolviendo en el directorio en cada request,
// y una key rotada produce una entrada nueva.
type Pool struct {
	dial    Factory
	entries *gocache.Cache
	sf      singleflight.Group

	mu     sync.Mutex // refs/evicted de cada entry
	closed bool
}

type entry struct {
	conn    Connector
	refs    int
	evicted bool
}

// NewPool envuelve dial. idleTTL <= 0 usa 10 minutos.
func NewPool(dial Factory, idleTTL time.Duration) *Pool {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	cleanup := idleTTL / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	p := &Pool{dial: dial, entries: gocache.New(idleTTL, cleanup)}
	p.entries.OnEvicted(func(_ string, v any) {
		if e, ok := v.(*entry); ok {
			p.evict(e)
		}
	})
	return p
}

func fingerprint(backendURL, backendKey string) string {
	sum := sha256.Sum256([]byte(backendURL + "\x00" + backendKey))
	return hex.EncodeToString(sum[:])
}

func (p *Pool) Connect(ctx context.Context, backendURL, backendKey string) (Connector, error) {
	k := fingerprint(backendURL, backendKey)
	if e := p.acquire(k); e != nil {
		return &lease{Connector: e.conn, pool: p, e: e}, nil
	}

	v, err, _ := p.sf.Do(k, func() (any, error) {
		if e := p.peek(k); e != nil {
			return e, nil
		}
		// Get oculta las entradas vencidas que el janitor aún no barrió; SetDefault
		// las pisaría sin OnEvicted y el conector viejo quedaría abierto.
		p.entries.DeleteExpired()
		c, err := p.dial.Connect(ctx, backendURL, backendKey)
		if err != nil {
			return nil, err
		}
		e := &entry{conn: c}
		p.entries.SetDefault(k, e)
		logger.From(ctx).Debug("backend connector opened",
			logger.Component("backend.pool"), logger.Count(p.entries.ItemCount()))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e := v.(*entry)

	p.mu.Lock()
	if e.evicted || p.closed {
		p.mu.Unlock()
		// carrera con el janitor: conexión fuera del pool, se cierra al soltarla
		return p.dial.Connect(ctx, backendURL, backendKey)
	}
	e.refs++
	p.mu.Unlock()
	return &lease{Connector: e.conn, pool: p, e: e}, nil
}

// acquire toma una referencia y renueva el TTL si la entrada sigue viva.
func (p *Pool) acquire(k string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.entries.Get(k)
	if !ok {
		return nil
	}
	e := v.(*entry)
	if e.evicted || p.closed {
		return nil
	}
	e.refs++
	p.entries.SetDefault(k, e)
	return e
}

func (p *Pool) peek(k string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.entries.Get(k)
	if !ok {
		return nil
	}
	if e := v.(*entry); !e.evicted {
		return e
	}
	return nil
}

func (p *Pool) evict(e *entry) {
	p.mu.Lock()
	e.evicted = true
	idle := e.refs == 0
	p.mu.Unlock()
	if idle {
		_ = e.conn.Close()
	}
}

func (p *Pool) release(e *entry) {
	p.mu.Lock()
	e.refs--
	closeNow := e.evicted && e.refs == 0
	p.mu.Unlock()
	if closeNow {
		_ = e.conn.Close()
	}
}

// Len es la cantidad de conectores vivos (gauge userrelay_connectors_active).
func (p *Pool) Len() int { return p.entries.ItemCount() }

// Close desaloja todo; los conectores en uso se cierran al soltarse.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.entries.DeleteExpired()
	for k := range p.entries.Items() {
		p.entries.Delete(k)
	}
	return nil
}

// lease es un préstamo del pool: Close lo devuelve en vez de cerrar la conexión.
type lease struct {
	Connector
	pool *Pool
	e    *entry
	once sync.Once
}

func (l *lease) Close() error {
	l.once.Do(func() { l.pool.release(l.e) })
	return nil
}

func (l *lease) Unwrap() Connector { return l.Connector }
