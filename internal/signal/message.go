package signal

import (
	"encoding/json"

	"github.com/samber/lo"

	"github.com/dway/meetup/internal/domain"
)

// Wire message types. Everything is a JSON text frame with a "type"
// discriminator; the rest of the shape depends on the type.
const (
	// client -> server
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypePing      = "ping"
	TypeChat      = "chat"
	TypeHandRaise = "hand-raise"

	// relayed verbatim between peers (both directions)
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	// server -> client
	TypeExistingParticipants = "existing-participants"
	TypeParticipantJoined    = "participant-joined"
	TypeParticipantLeft      = "participant-left"
	TypeRoomRoster           = "room-roster"
	TypeHandRaised           = "hand-raised"
	TypePong                 = "pong"
	TypeLeft                 = "left"
	TypeError                = "error"
)

// Envelope is decoded first to pick the handler.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRequest struct {
	Type     string          `json:"type"`
	Room     string          `json:"room"`
	Identity domain.Identity `json:"identity"`
}

// SignalRequest addresses an offer, answer or ICE candidate to one
// peer. Payload is opaque to the server.
type SignalRequest struct {
	Type    string          `json:"type"`
	To      domain.ConnID   `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// SignalRelay is the server->client side of SignalRequest, annotated
// with the sender. Name is set on offers so the receiver can label the
// tile before the roster catches up.
type SignalRelay struct {
	Type    string          `json:"type"`
	From    domain.ConnID   `json:"from"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type ChatRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Text string `json:"text"`
}

type HandRaiseRequest struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	Raised bool   `json:"raised"`
}

type ParticipantDTO struct {
	ID         domain.ConnID `json:"id"`
	Name       string        `json:"name"`
	HandRaised bool          `json:"handRaised"`
}

type ExistingParticipants struct {
	Type         string           `json:"type"`
	Participants []ParticipantDTO `json:"participants"`
}

type ParticipantJoined struct {
	Type string        `json:"type"`
	ID   domain.ConnID `json:"id"`
	Name string        `json:"name"`
}

type ParticipantLeft struct {
	Type string        `json:"type"`
	ID   domain.ConnID `json:"id"`
}

type RoomRoster struct {
	Type         string           `json:"type"`
	Participants []ParticipantDTO `json:"participants"`
}

type HandRaised struct {
	Type   string        `json:"type"`
	ID     domain.ConnID `json:"id"`
	Raised bool          `json:"raised"`
}

type ChatEvent struct {
	Type string        `json:"type"`
	From domain.ConnID `json:"from"`
	Name string        `json:"name"`
	Text string        `json:"text"`
	TS   int64         `json:"ts"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func toDTO(p domain.Participant) ParticipantDTO {
	return ParticipantDTO{ID: p.Conn, Name: p.Name, HandRaised: p.HandRaised}
}

func toDTOs(ps []domain.Participant) []ParticipantDTO {
	return lo.Map(ps, func(p domain.Participant, _ int) ParticipantDTO { return toDTO(p) })
}
