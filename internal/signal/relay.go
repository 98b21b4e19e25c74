package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dway/meetup/internal/domain"
)

// handleRelay forwards one offer, answer or ICE candidate to its target
// connection, annotated with the sender. A vanished target is a silent
// drop: the participant-left broadcast already on its way lets the
// sender tear down the attempt. A hostile or confused client must not
// be able to disrupt anyone else, so there is no error path back.
func (ctl *Controller) handleRelay(kind string, from domain.ConnID, data []byte) {
	var p SignalRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad signal payload")
		return
	}
	if p.To == "" {
		return
	}

	target, ok := ctl.Registry.Conn(p.To)
	if !ok {
		log.Debug().Str("module", "signal").Str("kind", kind).
			Str("from", string(from)).Str("to", string(p.To)).Msg("relay target gone")
		return
	}

	relay := SignalRelay{
		Type:    kind,
		From:    from,
		Payload: p.Payload,
	}
	if kind == TypeOffer {
		if ident, ok := ctl.Registry.Identity(from); ok {
			relay.Name = ident.Name
		}
	}

	log.Debug().Str("module", "signal").Str("kind", kind).
		Str("from", string(from)).Str("to", string(p.To)).Msg("relaying signal")
	ctl.sendJSON(target, relay)
}
