// Package client is the peer-side counterpart of the signaling server:
// a WebSocket signaling client, a local media source and one
// negotiation driver per remote participant, tied together by a
// meeting session.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
	"github.com/dway/meetup/internal/signal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClientClosed = errors.New("signaling client closed")

// SignalClient manages the WebSocket connection to the signaling server.
type SignalClient struct {
	conn     *websocket.Conn
	incoming chan []byte
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

func NewSignalClient() *SignalClient {
	return &SignalClient{
		incoming: make(chan []byte, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the pumps.
func (c *SignalClient) Connect(ctx context.Context, serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Incoming exposes raw server frames; the channel closes when the
// connection is gone.
func (c *SignalClient) Incoming() <-chan []byte {
	return c.incoming
}

func (c *SignalClient) readPump() {
	defer func() {
		c.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.incoming <- data:
		case <-c.done:
			return
		}
	}
}

func (c *SignalClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "client").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *SignalClient) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- b:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *SignalClient) Join(room string, identity domain.Identity) error {
	return c.send(signal.JoinRequest{Type: signal.TypeJoin, Room: room, Identity: identity})
}

func (c *SignalClient) SendOffer(to domain.ConnID, sd webrtc.SessionDescription) error {
	return c.sendSignal(signal.TypeOffer, to, sd)
}

func (c *SignalClient) SendAnswer(to domain.ConnID, sd webrtc.SessionDescription) error {
	return c.sendSignal(signal.TypeAnswer, to, sd)
}

func (c *SignalClient) SendCandidate(to domain.ConnID, ci webrtc.ICECandidateInit) error {
	return c.sendSignal(signal.TypeCandidate, to, ci)
}

func (c *SignalClient) sendSignal(kind string, to domain.ConnID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(signal.SignalRequest{Type: kind, To: to, Payload: raw})
}

func (c *SignalClient) SendChat(room, text string) error {
	return c.send(signal.ChatRequest{Type: signal.TypeChat, Room: room, Text: text})
}

func (c *SignalClient) SendHandRaise(room string, raised bool) error {
	return c.send(signal.HandRaiseRequest{Type: signal.TypeHandRaise, Room: room, Raised: raised})
}

func (c *SignalClient) SendLeave() error {
	return c.send(signal.Envelope{Type: signal.TypeLeave})
}

func (c *SignalClient) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
