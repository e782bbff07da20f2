// internal/hostlink/forwarder.go
package hostlink

import (
	"context"

	"github.com/rs/zerolog"
)

// Sink receives inbound payloads. *Client implements it.
type Sink interface {
	Deliver(payload []byte) error
}

// Forwarder decouples the TDMA loop from host delivery. Enqueue never
// blocks; payloads that do not fit in the buffer are dropped and counted.
type Forwarder struct {
	sink    Sink
	log     zerolog.Logger
	queue   chan []byte
	dropped chan struct{}
}

func NewForwarder(sink Sink, depth int, log zerolog.Logger) *Forwarder {
	if depth <= 0 {
		depth = 64
	}
	return &Forwarder{
		sink:    sink,
		log:     log,
		queue:   make(chan []byte, depth),
		dropped: make(chan struct{}, 1),
	}
}

// Enqueue reports false when the payload was dropped.
func (f *Forwarder) Enqueue(payload []byte) bool {
	select {
	case f.queue <- payload:
		return true
	default:
		select {
		case f.dropped <- struct{}{}:
		default:
		}
		return false
	}
}

// Run delivers queued payloads until ctx is cancelled. With a nil sink
// payloads are only logged.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-f.dropped:
			f.log.Warn().Msg("host queue full, payload dropped")

		case p := <-f.queue:
			if f.sink == nil {
				f.log.Info().Int("len", len(p)).Hex("payload", p).Msg("inbound payload")
				continue
			}
			if err := f.sink.Deliver(p); err != nil {
				f.log.Error().Err(err).Int("len", len(p)).Msg("host delivery failed")
			}
		}
	}
}
