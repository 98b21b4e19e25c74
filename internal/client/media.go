package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
)

var ErrMediaTimeout = errors.New("media source not ready in time")

// Capturer produces the local audio and video tracks.
type Capturer interface {
	Capture() (audio, video webrtc.TrackLocal, err error)
}

// SyntheticCapturer emits silent/blank tracks. It doubles as the
// placeholder when a real capture device fails: a join never fails for
// lack of a camera.
type SyntheticCapturer struct{}

func (SyntheticCapturer) Capture() (webrtc.TrackLocal, webrtc.TrackLocal, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "meetup")
	if err != nil {
		return nil, nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "meetup")
	if err != nil {
		return nil, nil, err
	}
	return audio, video, nil
}

// Source owns the local tracks shared by all negotiation drivers.
// Acquisition completes exactly once and is signaled through Ready;
// drivers wait on that signal with a bounded timeout instead of
// polling.
type Source struct {
	mu      sync.Mutex
	audio   webrtc.TrackLocal
	video   webrtc.TrackLocal
	senders map[domain.ConnID]*webrtc.RTPSender
	ready   chan struct{}
}

func NewSource() *Source {
	return &Source{
		senders: make(map[domain.ConnID]*webrtc.RTPSender),
		ready:   make(chan struct{}),
	}
}

// Acquire runs the capturer and signals readiness. A capture failure
// degrades to the synthetic placeholder rather than failing the join.
func (s *Source) Acquire(cap Capturer) {
	audio, video, err := cap.Capture()
	if err != nil {
		log.Warn().Err(err).Str("module", "client.media").Msg("capture failed, using placeholder")
		audio, video, err = SyntheticCapturer{}.Capture()
		if err != nil {
			// Track construction only fails on malformed codec params.
			log.Error().Err(err).Str("module", "client.media").Msg("placeholder failed")
			return
		}
	}
	s.mu.Lock()
	s.audio = audio
	s.video = video
	s.mu.Unlock()
	close(s.ready)
}

// WaitReady blocks until acquisition completes, a definite failure
// state after the timeout.
func (s *Source) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.ready:
		return nil
	case <-time.After(timeout):
		return ErrMediaTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) Tracks() (audio, video webrtc.TrackLocal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio, s.video
}

func (s *Source) attachVideoSender(id domain.ConnID, sender *webrtc.RTPSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[id] = sender
}

func (s *Source) detachVideoSender(id domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.senders, id)
}

// SwitchVideo replaces the outgoing video track on every active driver
// under one lock, so no driver sends a half-switched stream. Used for
// screen share and for switching back.
func (s *Source) SwitchVideo(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for id, sender := range s.senders {
		if err := sender.ReplaceTrack(track); err != nil {
			log.Error().Err(err).Str("module", "client.media").Str("conn", string(id)).Msg("replace track")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.video = track
	return nil
}
