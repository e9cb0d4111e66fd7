package es

// Command is a request to change an aggregate. Every command carries a
// correlation token so the events and errors it produces can be traced
// back to it.
type Command interface {
	CommandCorrelation() string
}

// Correlated is an embeddable helper that satisfies Command.
type Correlated struct {
	Correlation string `json:"correlation"`
}

func (c Correlated) CommandCorrelation() string { return c.Correlation }

// CorrelatedEvent is implemented by events that carry the correlation of
// the command that produced them. The store helpers lift it into the
// envelope so it survives persistence without decoding the payload.
type CorrelatedEvent interface {
	EventCorrelation() string
}

// Decider maps a command to the events it produces, given the current
// aggregate state. A nil error with events means the command was accepted;
// a non-nil error rejects the command and must leave state untouched.
type Decider interface {
	Decide(cmd Command) ([]any, error)
}

// DecidingAggregate is an aggregate that can also decide commands. The
// Processor operates on this combination.
type DecidingAggregate interface {
	Aggregate
	Decider
}

// Outcome is the per-command result of a processor batch, in batch order.
type Outcome struct {
	// Correlation is the token of the command this outcome belongs to.
	Correlation string
	// Events holds the accepted command's events. Nil when Err is set.
	Events []any
	// Err is the rejection reason, nil for accepted commands.
	Err error
}

func (o Outcome) Accepted() bool { return o.Err == nil }
