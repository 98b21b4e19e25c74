package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/core"
	"github.com/dway/meetup/internal/domain"
)

// handleJoin runs the presence flow for one joining client: register in
// the room store, hand the joiner the pre-existing participants, and
// announce the joiner to everyone else. The joiner will initiate a
// negotiation toward each existing peer; existing peers only respond.
// That rule fixes initiator/responder roles per pair.
func (ctl *Controller) handleJoin(connID domain.ConnID, c core.SignalConnection, data []byte) {
	var p JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	roomID := domain.RoomID(p.Room)
	if err := domain.ValidateRoomID(roomID); err != nil {
		ctl.sendError(c, err.Error())
		return
	}

	identity := p.Identity
	if identity.Name == "" {
		identity.Name = domain.AnonymousName()
	}
	if err := domain.ValidateName(identity.Name); err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	ctl.Registry.SetIdentity(connID, identity)

	// Snapshot of existing participants is atomic with registration;
	// nobody can join between the two.
	others, prev, rejoined := ctl.Rooms.Join(roomID, connID, identity.Name)
	log.Info().Str("module", "signal").Str("conn", string(connID)).
		Str("room", p.Room).Str("name", identity.Name).Int("peers", len(others)).Msg("join")

	// A switch vacated another room; its members must see the departure
	// or they keep a ghost tile and a dead negotiation.
	if prev != "" {
		ctl.broadcastRoom(prev, ParticipantLeft{Type: TypeParticipantLeft, ID: connID}, "")
		ctl.broadcastRoster(prev)
	}

	ctl.sendJSON(c, ExistingParticipants{
		Type:         TypeExistingParticipants,
		Participants: toDTOs(others),
	})

	// A same-room re-join replaced the entry in place: announcing it as
	// a new participant would make peers wait for an offer that never
	// comes. The refreshed roster is enough.
	if !rejoined {
		ctl.broadcastRoom(roomID, ParticipantJoined{
			Type: TypeParticipantJoined,
			ID:   connID,
			Name: identity.Name,
		}, connID)
	}

	ctl.broadcastRoster(roomID)
}

// handleLeave is the explicit variant: the socket stays open, only the
// room membership goes.
func (ctl *Controller) handleLeave(connID domain.ConnID, c core.SignalConnection) {
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("leave")
	ctl.leaveRoom(connID)
	ctl.sendJSON(c, Envelope{Type: TypeLeft})
}

// onDisconnect is unconditional and idempotent: it runs whether or not
// a join ever completed, and whether or not an explicit leave already
// cleaned up.
func (ctl *Controller) onDisconnect(connID domain.ConnID) {
	ctl.leaveRoom(connID)
	ctl.Registry.Unbind(connID)
}

func (ctl *Controller) leaveRoom(connID domain.ConnID) {
	roomID, ok := ctl.Rooms.Leave(connID)
	if !ok {
		return
	}
	ctl.broadcastRoom(roomID, ParticipantLeft{Type: TypeParticipantLeft, ID: connID}, "")
	ctl.broadcastRoster(roomID)
}

// broadcastRoom delivers v to every connection currently in the room,
// except exclude. Membership is re-read at send time: someone who left
// after the event was formed must not receive it.
func (ctl *Controller) broadcastRoom(roomID domain.RoomID, v any, exclude domain.ConnID) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, p := range ctl.Rooms.Participants(roomID) {
		if p.Conn == exclude {
			continue
		}
		conn, ok := ctl.Registry.Conn(p.Conn)
		if !ok {
			continue
		}
		if err := conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(p.Conn)).Msg("broadcast drop")
		}
	}
}

// broadcastRoster pushes the full ordered participant list to the whole
// room, keeping every client's sidebar consistent after presence churn.
func (ctl *Controller) broadcastRoster(roomID domain.RoomID) {
	ps := ctl.Rooms.Participants(roomID)
	if ps == nil {
		return
	}
	ctl.broadcastRoom(roomID, RoomRoster{Type: TypeRoomRoster, Participants: toDTOs(ps)}, "")
}
