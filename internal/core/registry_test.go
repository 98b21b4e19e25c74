package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dway/meetup/internal/domain"
)

type nopConn struct{ closed bool }

func (c *nopConn) TrySend(Frame) error { return nil }
func (c *nopConn) Close()              { c.closed = true }

func TestRegistry_BindLookupUnbind(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	conn := &nopConn{}

	id := NewConnID()
	r.Bind(id, domain.Identity{ID: "u1", Name: "Alice"}, conn)

	got, ok := r.Conn(id)
	req.True(ok)
	req.Same(conn, got.(*nopConn))

	ident, ok := r.Identity(id)
	req.True(ok)
	req.Equal("Alice", ident.Name)

	r.Unbind(id)
	_, ok = r.Conn(id)
	req.False(ok)
	_, ok = r.Identity(id)
	req.False(ok)
}

func TestRegistry_SetIdentity(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	id := NewConnID()
	r.Bind(id, domain.Identity{ID: "cookie-token"}, &nopConn{})
	r.SetIdentity(id, domain.Identity{ID: "u1", Name: "Alice"})

	ident, ok := r.Identity(id)
	req.True(ok)
	req.Equal("u1", ident.ID)
	req.Equal("Alice", ident.Name)

	// Setting identity on an unknown connection is a no-op
	r.SetIdentity("ghost", domain.Identity{Name: "X"})
	_, ok = r.Identity("ghost")
	req.False(ok)
}

func TestNewConnID_Unique(t *testing.T) {
	req := require.New(t)
	seen := make(map[domain.ConnID]bool)
	for range 100 {
		id := NewConnID()
		req.False(seen[id])
		seen[id] = true
	}
}
