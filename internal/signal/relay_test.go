package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dway/meetup/internal/domain"
)

func TestRelay_DeliversToTargetOnly(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	b := connect(t, ctl, "b", "r1", "Bob")
	c := connect(t, ctl, "c", "r1", "Carol")
	a.reset()
	b.reset()
	c.reset()

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	ctl.handleFrame("b", b, mustJSON(t, SignalRequest{Type: TypeOffer, To: "a", Payload: payload}))

	frames := a.ofType(t, TypeOffer)
	req.Len(frames, 1)
	var relay SignalRelay
	req.NoError(json.Unmarshal(frames[0], &relay))
	req.Equal(domain.ConnID("b"), relay.From)
	req.JSONEq(string(payload), string(relay.Payload))

	// Never delivered to a third party, never echoed to the sender
	req.Empty(b.ofType(t, TypeOffer))
	req.Empty(c.ofType(t, TypeOffer))
}

func TestRelay_OfferCarriesSenderName(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	b := connect(t, ctl, "b", "r1", "Bob")
	a.reset()

	ctl.handleFrame("b", b, mustJSON(t, SignalRequest{Type: TypeOffer, To: "a", Payload: json.RawMessage(`{}`)}))
	var relay SignalRelay
	req.NoError(json.Unmarshal(a.ofType(t, TypeOffer)[0], &relay))
	req.Equal("Bob", relay.Name)

	// Answers and candidates travel without the name
	a.reset()
	relay = SignalRelay{}
	ctl.handleFrame("b", b, mustJSON(t, SignalRequest{Type: TypeCandidate, To: "a", Payload: json.RawMessage(`{}`)}))
	req.NoError(json.Unmarshal(a.ofType(t, TypeCandidate)[0], &relay))
	req.Empty(relay.Name)
}

func TestRelay_UnknownTarget_SilentDrop(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	a.reset()

	ctl.handleFrame("a", a, mustJSON(t, SignalRequest{Type: TypeAnswer, To: "ghost", Payload: json.RawMessage(`{}`)}))

	// No error back, nothing delivered anywhere
	req.Empty(a.frames)
}

func TestChat_ReachesEveryoneElseExactlyOnce(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	b := connect(t, ctl, "b", "r1", "Bob")
	c := connect(t, ctl, "c", "r1", "Carol")
	other := connect(t, ctl, "d", "r2", "Dan")
	a.reset()
	b.reset()
	c.reset()
	other.reset()

	ctl.handleFrame("a", a, mustJSON(t, ChatRequest{Type: TypeChat, Room: "r1", Text: "hello"}))

	for _, peer := range []*fakeConn{b, c} {
		frames := peer.ofType(t, TypeChat)
		req.Len(frames, 1)
		var msg ChatEvent
		req.NoError(json.Unmarshal(frames[0], &msg))
		req.Equal(domain.ConnID("a"), msg.From)
		req.Equal("Alice", msg.Name)
		req.Equal("hello", msg.Text)
		req.NotZero(msg.TS)
	}

	// Never the sender, never another room
	req.Empty(a.ofType(t, TypeChat))
	req.Empty(other.ofType(t, TypeChat))
}

func TestChat_RoomMismatch_Dropped(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	b := connect(t, ctl, "b", "r1", "Bob")
	b.reset()

	ctl.handleFrame("a", a, mustJSON(t, ChatRequest{Type: TypeChat, Room: "r2", Text: "spoofed"}))
	req.Empty(b.ofType(t, TypeChat))
}

func TestHandRaise_MutatesStoreAndExcludesSender(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	b := connect(t, ctl, "b", "r1", "Bob")
	a.reset()
	b.reset()

	ctl.handleFrame("a", a, mustJSON(t, HandRaiseRequest{Type: TypeHandRaise, Room: "r1", Raised: true}))

	req.True(ctl.Rooms.Participants("r1")[0].HandRaised)
	req.Len(b.ofType(t, TypeHandRaised), 1)
	req.Empty(a.ofType(t, TypeHandRaised))

	// Unregistered senders cannot raise anything
	ghost := &fakeConn{}
	ctl.Registry.Bind("ghost", domain.Identity{}, ghost)
	b.reset()
	ctl.handleFrame("ghost", ghost, mustJSON(t, HandRaiseRequest{Type: TypeHandRaise, Raised: true}))
	req.Empty(b.ofType(t, TypeHandRaised))
}

func TestHandleFrame_BadJSON_Ignored(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	a.reset()

	ctl.handleFrame("a", a, []byte("{not json"))
	ctl.handleFrame("a", a, mustJSON(t, Envelope{Type: "no-such-type"}))

	// The confused client stays connected and registered
	req.Empty(a.frames)
	req.Len(ctl.Rooms.Participants("r1"), 1)
}

func TestPing_Pong(t *testing.T) {
	req := require.New(t)
	ctl := newTestController()

	a := connect(t, ctl, "a", "r1", "Alice")
	a.reset()

	ctl.handleFrame("a", a, mustJSON(t, Envelope{Type: TypePing}))
	req.Len(a.ofType(t, TypePong), 1)
}
