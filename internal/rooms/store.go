// Package rooms holds the process-wide room table: which connection is
// present in which room. All mutations go through one mutex so that the
// "snapshot of existing participants" handed to a joiner is atomic with
// the registration itself.
package rooms

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dway/meetup/internal/domain"
)

type room struct {
	id      domain.RoomID
	order   []domain.ConnID
	members map[domain.ConnID]*domain.Participant
}

// Store is the single owner of all Participant records. Rooms are
// created lazily on first join and deleted as soon as they empty;
// an empty room is never retained.
type Store struct {
	mu     sync.Mutex
	rooms  map[domain.RoomID]*room
	byConn map[domain.ConnID]domain.RoomID
}

func NewStore() *Store {
	return &Store{
		rooms:  make(map[domain.RoomID]*room),
		byConn: make(map[domain.ConnID]domain.RoomID),
	}
}

// Join registers the connection in roomID and returns the participants
// that were already present, in insertion order. A connection belongs to
// at most one room: joining while registered elsewhere is an implicit
// leave of the first room, reported via prev so the caller can notify
// that room; re-joining the same room replaces the entry in place (last
// call wins, position preserved), reported via rejoined. Both cases
// signal a confused client and are logged as protocol violations.
func (s *Store) Join(roomID domain.RoomID, conn domain.ConnID, name string) (others []domain.Participant, prev domain.RoomID, rejoined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byConn[conn]; ok {
		if cur == roomID {
			log.Warn().Str("module", "rooms").Str("conn", string(conn)).Str("room", string(roomID)).
				Msg("duplicate join, replacing entry")
			p := s.rooms[cur].members[conn]
			p.Name = name
			p.HandRaised = false
			return s.othersLocked(s.rooms[cur], conn), "", true
		}
		log.Warn().Str("module", "rooms").Str("conn", string(conn)).
			Str("from", string(cur)).Str("to", string(roomID)).
			Msg("join while in another room, leaving first")
		prev = cur
		s.leaveLocked(conn)
	}

	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{
			id:      roomID,
			members: make(map[domain.ConnID]*domain.Participant),
		}
		s.rooms[roomID] = r
		log.Info().Str("module", "rooms").Str("room", string(roomID)).Msg("room created")
	}

	others = s.othersLocked(r, conn)
	r.members[conn] = &domain.Participant{
		Conn:     conn,
		Name:     name,
		JoinedAt: time.Now(),
	}
	r.order = append(r.order, conn)
	s.byConn[conn] = roomID
	log.Info().Str("module", "rooms").Str("conn", string(conn)).Str("room", string(roomID)).
		Str("name", name).Int("present", len(r.members)).Msg("participant joined")
	return others, prev, false
}

// Leave removes the connection from whichever room holds it and reports
// that room so the caller can broadcast the departure. ok is false when
// the connection was not registered anywhere; that is a normal outcome
// of cleanup racing an explicit leave, not an error.
func (s *Store) Leave(conn domain.ConnID) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked(conn)
}

func (s *Store) leaveLocked(conn domain.ConnID) (domain.RoomID, bool) {
	roomID, ok := s.byConn[conn]
	if !ok {
		return "", false
	}
	delete(s.byConn, conn)
	r := s.rooms[roomID]
	delete(r.members, conn)
	r.order = lo.Reject(r.order, func(id domain.ConnID, _ int) bool { return id == conn })
	log.Info().Str("module", "rooms").Str("conn", string(conn)).Str("room", string(roomID)).
		Int("remaining", len(r.members)).Msg("participant left")
	if len(r.members) == 0 {
		delete(s.rooms, roomID)
		log.Info().Str("module", "rooms").Str("room", string(roomID)).Msg("room deleted")
	}
	return roomID, true
}

// SetHandRaised mutates the participant's flag in place and reports the
// room for broadcast. ok is false when the connection is unregistered.
func (s *Store) SetHandRaised(conn domain.ConnID, raised bool) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.byConn[conn]
	if !ok {
		return "", false
	}
	s.rooms[roomID].members[conn].HandRaised = raised
	return roomID, true
}

// Participants returns a copy of the room's membership in insertion
// order, so clients render a stable ordering. Nil when the room does
// not exist.
func (s *Store) Participants(roomID domain.RoomID) []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Map(r.order, func(id domain.ConnID, _ int) domain.Participant {
		return *r.members[id]
	})
}

// RoomOf reports which room currently holds the connection.
func (s *Store) RoomOf(conn domain.ConnID) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.byConn[conn]
	return roomID, ok
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

// List is a read-only view for the REST API.
func (s *Store) List() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for id, r := range s.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(r.members)})
	}
	return out
}

func (s *Store) othersLocked(r *room, conn domain.ConnID) []domain.Participant {
	others := make([]domain.Participant, 0, len(r.members))
	for _, id := range r.order {
		if id == conn {
			continue
		}
		others = append(others, *r.members[id])
	}
	return others
}
