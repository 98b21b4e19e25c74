package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
)

type connEntry struct {
	identity domain.Identity
	conn     SignalConnection
}

// Registry maps live transport connections to their connection ids.
// An entry's lifecycle is tied 1:1 to the underlying socket: Bind on
// upgrade, Unbind when the read loop exits.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

// NewConnID allocates a fresh connection id. UUIDs make reuse within a
// process lifetime a non-concern.
func NewConnID() domain.ConnID {
	return domain.ConnID(uuid.NewString())
}

func (r *Registry) Bind(id domain.ConnID, identity domain.Identity, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{identity: identity, conn: conn}
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("bound connection")
}

// SetIdentity replaces the identity recorded at Bind time; called when
// the join message reveals who the connection actually is.
func (r *Registry) SetIdentity(id domain.ConnID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.identity = identity
	}
}

func (r *Registry) Identity(id domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.identity, true
	}
	return domain.Identity{}, false
}

func (r *Registry) Conn(id domain.ConnID) (SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.conn, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("unbound connection")
}
