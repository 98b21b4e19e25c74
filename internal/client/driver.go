package client

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
)

// State of one pairwise negotiation.
type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswered
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswered:
		return "answered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Driver runs the offer/answer/ICE exchange with one remote
// participant. Exactly one side of a pair initiates: the joiner toward
// every pre-existing participant, never the other way around.
//
// Negotiation errors park the driver in StateFailed; there is no
// automatic retry, a fresh join is required. StateClosed is terminal
// from any state and is entered when the remote leaves.
type Driver struct {
	remote     domain.ConnID
	remoteName string
	initiator  bool

	sc   *SignalClient
	src  *Source
	stun []string

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	onState func(domain.ConnID, State)
}

func newDriver(remote domain.ConnID, name string, initiator bool, sc *SignalClient, src *Source, stun []string, onState func(domain.ConnID, State)) *Driver {
	return &Driver{
		remote:     remote,
		remoteName: name,
		initiator:  initiator,
		sc:         sc,
		src:        src,
		stun:       stun,
		state:      StateIdle,
		onState:    onState,
	}
}

func (d *Driver) Remote() domain.ConnID { return d.remote }
func (d *Driver) RemoteName() string    { return d.remoteName }
func (d *Driver) Initiator() bool       { return d.initiator }

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(next State) {
	d.mu.Lock()
	if d.state == StateClosed || d.state == next {
		d.mu.Unlock()
		return
	}
	d.state = next
	cb := d.onState
	d.mu.Unlock()

	log.Debug().Str("module", "client.driver").Str("remote", string(d.remote)).
		Stringer("state", next).Msg("negotiation state")
	if cb != nil {
		cb(d.remote, next)
	}
}

func (d *Driver) buildPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: d.stun}},
	})
	if err != nil {
		return nil, err
	}

	audio, video := d.src.Tracks()
	if audio != nil {
		if _, err := pc.AddTrack(audio); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	if video != nil {
		sender, err := pc.AddTrack(video)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		d.src.attachVideoSender(d.remote, sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := d.sc.SendCandidate(d.remote, c.ToJSON()); err != nil {
			log.Debug().Err(err).Str("module", "client.driver").Str("remote", string(d.remote)).Msg("send candidate")
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			d.setState(StateConnecting)
		case webrtc.PeerConnectionStateConnected:
			d.setState(StateConnected)
		case webrtc.PeerConnectionStateFailed:
			d.setState(StateFailed)
		}
	})

	d.mu.Lock()
	d.pc = pc
	d.mu.Unlock()
	return pc, nil
}

// startInitiator generates and sends the local offer, then waits for
// the answer to arrive via HandleAnswer.
func (d *Driver) startInitiator() {
	pc, err := d.buildPeerConnection()
	if err != nil {
		d.fail("build peer connection", err)
		return
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		d.fail("create offer", err)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		d.fail("set local description", err)
		return
	}
	if err := d.sc.SendOffer(d.remote, offer); err != nil {
		d.fail("send offer", err)
		return
	}
	d.setState(StateOfferSent)
}

// startResponder applies the incoming offer and answers it.
func (d *Driver) startResponder(offer webrtc.SessionDescription) {
	pc, err := d.buildPeerConnection()
	if err != nil {
		d.fail("build peer connection", err)
		return
	}
	d.setState(StateOfferReceived)
	if err := d.applyRemote(offer); err != nil {
		d.fail("set remote description", err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		d.fail("create answer", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		d.fail("set local description", err)
		return
	}
	if err := d.sc.SendAnswer(d.remote, answer); err != nil {
		d.fail("send answer", err)
		return
	}
	d.setState(StateAnswered)
}

// HandleAnswer applies the remote answer on the initiator side.
func (d *Driver) HandleAnswer(answer webrtc.SessionDescription) {
	if !d.initiator {
		log.Warn().Str("module", "client.driver").Str("remote", string(d.remote)).Msg("answer on responder side, dropped")
		return
	}
	if err := d.applyRemote(answer); err != nil {
		d.fail("apply answer", err)
		return
	}
	d.setState(StateAnswered)
}

// HandleCandidate applies a remote ICE candidate, buffering it while
// the remote description is still pending.
func (d *Driver) HandleCandidate(ci webrtc.ICECandidateInit) {
	d.mu.Lock()
	if !d.remoteSet {
		d.pending = append(d.pending, ci)
		d.mu.Unlock()
		return
	}
	pc := d.pc
	d.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "client.driver").Str("remote", string(d.remote)).Msg("add candidate")
	}
}

func (d *Driver) applyRemote(sd webrtc.SessionDescription) error {
	d.mu.Lock()
	pc0 := d.pc
	d.mu.Unlock()
	if pc0 == nil {
		return nil
	}
	if err := pc0.SetRemoteDescription(sd); err != nil {
		return err
	}
	d.mu.Lock()
	d.remoteSet = true
	pend := d.pending
	d.pending = nil
	pc := d.pc
	d.mu.Unlock()

	for _, ci := range pend {
		if err := pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "client.driver").Str("remote", string(d.remote)).Msg("add buffered candidate")
		}
	}
	return nil
}

func (d *Driver) fail(stage string, err error) {
	log.Error().Err(err).Str("module", "client.driver").
		Str("remote", string(d.remote)).Str("stage", stage).Msg("negotiation failed")
	d.setState(StateFailed)
}

// Close releases the negotiation and media session unconditionally,
// whatever state the pair was in.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return
	}
	d.state = StateClosed
	pc := d.pc
	d.pc = nil
	cb := d.onState
	d.mu.Unlock()

	d.src.detachVideoSender(d.remote)
	if pc != nil {
		_ = pc.Close()
	}
	log.Info().Str("module", "client.driver").Str("remote", string(d.remote)).Msg("driver closed")
	if cb != nil {
		cb(d.remote, StateClosed)
	}
}
