package es

import (
	"fmt"
	"log/slog"
)

// Projector folds persisted envelopes into aggregate state. It is the only
// path by which stored events become state: decode through the registry,
// apply in order, advance generation, committed version and sequence.
type Projector struct {
	log     *slog.Logger
	decoder Decoder
}

func NewProjector(log *slog.Logger, decoder Decoder) *Projector {
	return &Projector{
		log:     log.With(slog.String("component", "projector")),
		decoder: decoder,
	}
}

// Project applies the envelopes to agg in slice order. Envelope versions
// must continue the aggregate's committed version contiguously; a gap or
// an unknown event type aborts the fold with the aggregate left at the
// last successfully applied envelope.
func (p *Projector) Project(agg Aggregate, envs []Envelope) error {
	for _, e := range envs {
		expect := agg.GetVersion() + 1
		if e.Version != expect {
			return fmt.Errorf(
				"stream %s/%s: expect version %d, got %d",
				e.AggregateType, e.AggregateID, expect, e.Version,
			)
		}

		evt, err := p.decoder.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return err
		}

		agg.bumpGeneration()
		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
	}

	p.log.Debug(
		"projected",
		slog.Int("num_events", len(envs)),
		agg.GetVersion().SlogAttr(),
	)

	return nil
}
