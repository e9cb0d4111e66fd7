package es

import (
	"errors"
	"log/slog"
)

// ErrNoEvents marks a command the aggregate accepted without producing any
// events. An accepted command must change something; silence is a bug in
// the decider, not a no-op.
var ErrNoEvents = errors.New("accepted command produced no events")

// BatchPolicy controls how state evolves while a batch of commands is
// processed against one aggregate.
type BatchPolicy string

const (
	// SnapshotIsolation validates every command in the batch against the
	// state as of the start of the batch. Accepted events are raised as
	// uncommitted but not applied, so later commands in the batch do not
	// observe the effects of earlier ones.
	SnapshotIsolation BatchPolicy = "snapshot-isolation"
	// ChainedValidation applies each accepted command's events before
	// deciding the next one, so later commands observe the effects of
	// earlier commands in the same batch.
	ChainedValidation BatchPolicy = "chained-validation"
)

type (
	processorOpts struct {
		policy  BatchPolicy
		metrics ESMetrics
	}

	ProcessorOption interface{ applyToProcessor(*processorOpts) }

	BatchPolicyOption valueOption[BatchPolicy]
)

func WithBatchPolicy(p BatchPolicy) BatchPolicyOption { return BatchPolicyOption{v: p} }

func (o BatchPolicyOption) applyToProcessor(opts *processorOpts) { opts.policy = o.v }
func (o ESMetricsOption) applyToProcessor(opts *processorOpts)   { opts.metrics = o.m }

// Processor runs batches of commands against a deciding aggregate and
// collects one Outcome per command. A rejected command never aborts the
// batch; its error is recorded and processing continues with the next
// command.
type Processor struct {
	log     *slog.Logger
	policy  BatchPolicy
	metrics ESMetrics
}

func NewProcessor(log *slog.Logger, opts ...ProcessorOption) *Processor {
	options := processorOpts{
		policy:  SnapshotIsolation,
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToProcessor(&options)
	}

	return &Processor{
		log:     log.With(slog.String("component", "processor"), slog.String("policy", string(options.policy))),
		policy:  options.policy,
		metrics: options.metrics,
	}
}

func (p *Processor) Policy() BatchPolicy { return p.policy }

// Process decides each command in batch order and records the accepted
// events on the aggregate as uncommitted. The returned slice has exactly
// one Outcome per command, in the same order.
func (p *Processor) Process(agg DecidingAggregate, cmds ...Command) []Outcome {
	outcomes := make([]Outcome, 0, len(cmds))

	for _, cmd := range cmds {
		out := p.processOne(agg, cmd)
		outcomes = append(outcomes, out)

		if out.Err != nil {
			p.metrics.CommandProcessed(agg.GetAggType(), false)
			p.log.Debug(
				"command rejected",
				slog.String("correlation", out.Correlation),
				slog.Any("error", out.Err),
			)
		} else {
			p.metrics.CommandProcessed(agg.GetAggType(), true)
			p.log.Debug(
				"command accepted",
				slog.String("correlation", out.Correlation),
				slog.Int("num_events", len(out.Events)),
			)
		}
	}

	return outcomes
}

func (p *Processor) processOne(agg DecidingAggregate, cmd Command) Outcome {
	out := Outcome{Correlation: cmd.CommandCorrelation()}

	events, err := agg.Decide(cmd)
	if err != nil {
		out.Err = err
		return out
	}
	if len(events) == 0 {
		out.Err = ErrNoEvents
		return out
	}

	switch p.policy {
	case ChainedValidation:
		out.Err = RaiseAndApply(agg, events...)
	default:
		if out.Err = validateEvents(events...); out.Err == nil {
			for _, e := range events {
				agg.Raise(e)
			}
		}
	}
	if out.Err == nil {
		out.Events = events
	}
	return out
}
