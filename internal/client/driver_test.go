package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dway/meetup/internal/domain"
	"github.com/dway/meetup/internal/signal"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(_ domain.ConnID, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func readySource(t *testing.T) *Source {
	t.Helper()
	s := NewSource()
	s.Acquire(SyntheticCapturer{})
	return s
}

// drainSignal reads outgoing frames off the (unconnected) client until
// one of the wanted type shows up; trickle ICE may interleave
// candidates with the SDP messages.
func drainSignal(t *testing.T, sc *SignalClient, wantType string) signal.SignalRequest {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case b := <-sc.outgoing:
			var msg signal.SignalRequest
			require.NoError(t, json.Unmarshal(b, &msg))
			if msg.Type == wantType {
				return msg
			}
		case <-deadline:
			t.Fatalf("no outgoing %s signal", wantType)
			return signal.SignalRequest{}
		}
	}
}

func TestState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("idle", StateIdle.String())
	req.Equal("offer-sent", StateOfferSent.String())
	req.Equal("connected", StateConnected.String())
	req.Equal("closed", StateClosed.String())
}

func TestDriver_Initiator_SendsOffer(t *testing.T) {
	req := require.New(t)
	sc := NewSignalClient()
	rec := &stateRecorder{}
	d := newDriver("b", "Bob", true, sc, readySource(t), nil, rec.record)

	d.startInitiator()

	req.Equal(StateOfferSent, d.State())
	msg := drainSignal(t, sc, signal.TypeOffer)
	req.Equal(domain.ConnID("b"), msg.To)

	var sd webrtc.SessionDescription
	req.NoError(json.Unmarshal(msg.Payload, &sd))
	req.Equal(webrtc.SDPTypeOffer, sd.Type)
	req.NotEmpty(sd.SDP)

	d.Close()
}

func TestDriver_Responder_AnswersOffer(t *testing.T) {
	req := require.New(t)

	// A real remote endpoint produces the offer
	remoteSC := NewSignalClient()
	remote := newDriver("x", "X", true, remoteSC, readySource(t), nil, nil)
	remote.startInitiator()
	offerMsg := drainSignal(t, remoteSC, signal.TypeOffer)
	var offer webrtc.SessionDescription
	req.NoError(json.Unmarshal(offerMsg.Payload, &offer))

	sc := NewSignalClient()
	rec := &stateRecorder{}
	d := newDriver("a", "Alice", false, sc, readySource(t), nil, rec.record)

	d.startResponder(offer)

	// The live state may already be Connecting; the recorded transitions
	// prove the answer path ran in order.
	states := rec.all()
	req.Contains(states, StateOfferReceived)
	req.Contains(states, StateAnswered)

	msg := drainSignal(t, sc, signal.TypeAnswer)
	var answer webrtc.SessionDescription
	req.NoError(json.Unmarshal(msg.Payload, &answer))
	req.Equal(webrtc.SDPTypeAnswer, answer.Type)

	d.Close()
	remote.Close()
}

func TestDriver_HandleAnswer_OnResponder_Dropped(t *testing.T) {
	req := require.New(t)
	d := newDriver("a", "Alice", false, NewSignalClient(), readySource(t), nil, nil)

	d.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})

	// A responder never applies an answer
	req.Equal(StateIdle, d.State())
}

func TestDriver_HandleCandidate_BuffersUntilRemoteSet(t *testing.T) {
	req := require.New(t)
	d := newDriver("a", "Alice", true, NewSignalClient(), readySource(t), nil, nil)

	d.HandleCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1"})
	d.HandleCandidate(webrtc.ICECandidateInit{Candidate: "candidate:2"})

	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()
	req.Equal(2, pending)
}

func TestDriver_Close_IsTerminalFromAnyState(t *testing.T) {
	req := require.New(t)
	rec := &stateRecorder{}
	d := newDriver("b", "Bob", true, NewSignalClient(), readySource(t), nil, rec.record)

	d.startInitiator()
	req.Equal(StateOfferSent, d.State())

	d.Close()
	req.Equal(StateClosed, d.State())

	// Later transitions bounce off the terminal state
	d.setState(StateConnected)
	req.Equal(StateClosed, d.State())

	// Close is idempotent
	d.Close()
	states := rec.all()
	req.Equal(1, countState(states, StateClosed))
}

func countState(states []State, want State) int {
	n := 0
	for _, s := range states {
		if s == want {
			n++
		}
	}
	return n
}
