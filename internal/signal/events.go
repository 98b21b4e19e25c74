package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
)

// handleChat fans a message out to everyone else in the sender's room.
// The roomId in the payload must match where the sender actually is;
// a mismatch is a protocol violation and is dropped.
func (ctl *Controller) handleChat(connID domain.ConnID, data []byte) {
	var p ChatRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}

	roomID, ok := ctl.Rooms.RoomOf(connID)
	if !ok || (p.Room != "" && domain.RoomID(p.Room) != roomID) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).
			Str("claimed", p.Room).Msg("chat outside registered room, dropped")
		return
	}

	ident, _ := ctl.Registry.Identity(connID)
	msg := domain.ChatMessage{
		From: connID,
		Name: ident.Name,
		Text: p.Text,
		TS:   time.Now().UnixMilli(),
	}
	ctl.broadcastRoom(roomID, ChatEvent{
		Type: TypeChat,
		From: msg.From,
		Name: msg.Name,
		Text: msg.Text,
		TS:   msg.TS,
	}, connID)
}

// handleHandRaise flips the participant's flag in the room store, then
// tells everyone else. The sender already knows its own hand state.
func (ctl *Controller) handleHandRaise(connID domain.ConnID, data []byte) {
	var p HandRaiseRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad hand-raise payload")
		return
	}

	if cur, ok := ctl.Rooms.RoomOf(connID); !ok || (p.Room != "" && domain.RoomID(p.Room) != cur) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("hand-raise outside registered room, dropped")
		return
	}

	roomID, ok := ctl.Rooms.SetHandRaised(connID, p.Raised)
	if !ok {
		return
	}
	ctl.broadcastRoom(roomID, HandRaised{
		Type:   TypeHandRaised,
		ID:     connID,
		Raised: p.Raised,
	}, connID)
}
