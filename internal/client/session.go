package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
	"github.com/dway/meetup/internal/signal"
)

const mediaReadyTimeout = 10 * time.Second

// Events are the session's surface toward the UI layer.
type Events struct {
	OnRoster     func([]signal.ParticipantDTO)
	OnChat       func(signal.ChatEvent)
	OnHandRaised func(domain.ConnID, bool)
	OnPeerState  func(domain.ConnID, State)
}

// Session is one client's participation in one room: it joins, spawns
// a negotiation driver per remote participant and tears everything
// down on Leave. Leave is the single cancellation point; a stalled
// negotiation is only ever resolved by leaving or by the transport
// closing.
type Session struct {
	sc     *SignalClient
	src    *Source
	stun   []string
	events Events
	room   string

	mu      sync.Mutex
	drivers map[domain.ConnID]*Driver
	closed  bool
}

func NewSession(stun []string, events Events) *Session {
	return &Session{
		sc:      NewSignalClient(),
		src:     NewSource(),
		stun:    stun,
		events:  events,
		drivers: make(map[domain.ConnID]*Driver),
	}
}

// Join connects to the signaling server and enters the room. Media
// acquisition runs in the background; drivers wait for its readiness
// signal before negotiating.
func (s *Session) Join(ctx context.Context, serverURL, room string, identity domain.Identity, cap Capturer) error {
	s.room = room
	go s.src.Acquire(cap)

	if err := s.sc.Connect(ctx, serverURL); err != nil {
		return err
	}
	if err := s.sc.Join(room, identity); err != nil {
		return err
	}
	go s.loop(ctx)
	return nil
}

func (s *Session) SendChat(text string) error {
	return s.sc.SendChat(s.room, text)
}

func (s *Session) SendHandRaise(raised bool) error {
	return s.sc.SendHandRaise(s.room, raised)
}

// SwitchVideo swaps the outgoing video track on all connected peers at
// once (screen share on/off).
func (s *Session) SwitchVideo(track webrtc.TrackLocal) error {
	return s.src.SwitchVideo(track)
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.sc.Incoming():
			if !ok {
				return
			}
			s.dispatch(raw)
		}
	}
}

func (s *Session) dispatch(raw []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("bad server frame")
		return
	}

	switch env.Type {
	case signal.TypeExistingParticipants:
		var p signal.ExistingParticipants
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		s.onExisting(p.Participants)
	case signal.TypeOffer:
		var p signal.SignalRelay
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		s.onOffer(p)
	case signal.TypeAnswer:
		var p signal.SignalRelay
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(p.Payload, &sd); err != nil {
			return
		}
		if d := s.driver(p.From); d != nil {
			d.HandleAnswer(sd)
		}
	case signal.TypeCandidate:
		var p signal.SignalRelay
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Payload, &ci); err != nil {
			return
		}
		if d := s.driver(p.From); d != nil {
			d.HandleCandidate(ci)
		}
	case signal.TypeParticipantJoined:
		// The newcomer initiates; we wait for its offer.
	case signal.TypeParticipantLeft:
		var p signal.ParticipantLeft
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		s.closePeer(p.ID)
	case signal.TypeRoomRoster:
		var p signal.RoomRoster
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		if s.events.OnRoster != nil {
			s.events.OnRoster(p.Participants)
		}
	case signal.TypeChat:
		var p signal.ChatEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		if s.events.OnChat != nil {
			s.events.OnChat(p)
		}
	case signal.TypeHandRaised:
		var p signal.HandRaised
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		if s.events.OnHandRaised != nil {
			s.events.OnHandRaised(p.ID, p.Raised)
		}
	case signal.TypePong, signal.TypeLeft:
	case signal.TypeError:
		var p signal.ErrorEvent
		_ = json.Unmarshal(raw, &p)
		log.Warn().Str("module", "client.session").Str("error", p.Error).Msg("server error")
	default:
		log.Debug().Str("module", "client.session").Str("type", env.Type).Msg("unknown server frame")
	}
}

// onExisting runs once after join: this client initiates toward every
// participant that was already in the room.
func (s *Session) onExisting(ps []signal.ParticipantDTO) {
	if err := s.src.WaitReady(context.Background(), mediaReadyTimeout); err != nil {
		log.Error().Err(err).Str("module", "client.session").Msg("media not ready, skipping negotiation")
		return
	}
	for _, p := range ps {
		d := s.addDriver(p.ID, p.Name, true)
		if d == nil {
			continue
		}
		go d.startInitiator()
	}
}

// onOffer handles a newcomer's offer: this side responds, never
// initiates.
func (s *Session) onOffer(p signal.SignalRelay) {
	if err := s.src.WaitReady(context.Background(), mediaReadyTimeout); err != nil {
		log.Error().Err(err).Str("module", "client.session").Msg("media not ready, dropping offer")
		return
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(p.Payload, &sd); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("bad offer payload")
		return
	}
	d := s.addDriver(p.From, p.Name, false)
	if d == nil {
		return
	}
	go d.startResponder(sd)
}

func (s *Session) addDriver(remote domain.ConnID, name string, initiator bool) *Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if _, ok := s.drivers[remote]; ok {
		log.Warn().Str("module", "client.session").Str("remote", string(remote)).Msg("duplicate negotiation, dropped")
		return nil
	}
	d := newDriver(remote, name, initiator, s.sc, s.src, s.stun, s.events.OnPeerState)
	s.drivers[remote] = d
	return d
}

func (s *Session) driver(remote domain.ConnID) *Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drivers[remote]
}

func (s *Session) closePeer(remote domain.ConnID) {
	s.mu.Lock()
	d := s.drivers[remote]
	delete(s.drivers, remote)
	s.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

// Peers reports the current negotiation state per remote.
func (s *Session) Peers() map[domain.ConnID]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ConnID]State, len(s.drivers))
	for id, d := range s.drivers {
		out[id] = d.State()
	}
	return out
}

// Leave tears down every active negotiation synchronously and closes
// the signaling transport.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	drivers := make([]*Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		drivers = append(drivers, d)
	}
	s.drivers = make(map[domain.ConnID]*Driver)
	s.mu.Unlock()

	_ = s.sc.SendLeave()
	for _, d := range drivers {
		d.Close()
	}
	s.sc.Close()
	log.Info().Str("module", "client.session").Str("room", s.room).Msg("left room")
}
