package agent

import "time"

const (
	DefaultPollInterval = 15 * time.Second
	MaxPollInterval     = 60 * time.Second
	BackoffFactor       = 1.5
)

// PollOutcome classifies one poll for the interval transition.
type PollOutcome string

const (
	PollClaimed     PollOutcome = "claimed"
	PollEmpty       PollOutcome = "empty"
	PollServerError PollOutcome = "server_error"
	PollNetwork     PollOutcome = "network_error"
	PollRejected    PollOutcome = "rejected"
)

type Backoff struct {
	Default time.Duration
	Max     time.Duration
	Factor  float64
}

func DefaultBackoff() Backoff {
	return Backoff{Default: DefaultPollInterval, Max: MaxPollInterval, Factor: BackoffFactor}
}

// State is the dispatch loop's poll schedule.
type State struct {
	Interval    time.Duration
	LastOutcome PollOutcome
}

func InitialState(cfg Backoff) State {
	return State{Interval: cfg.Default}
}

// Next returns the schedule after a poll with the given outcome. Success
// resets to the default; server and network failures grow the interval up
// to Max; a 4xx rejection leaves it unchanged.
func Next(s State, outcome PollOutcome, cfg Backoff) State {
	next := State{Interval: s.Interval, LastOutcome: outcome}
	switch outcome {
	case PollClaimed, PollEmpty:
		next.Interval = cfg.Default
	case PollServerError, PollNetwork:
		grown := time.Duration(float64(s.Interval) * cfg.Factor)
		next.Interval = min(grown, cfg.Max)
	}
	if next.Interval <= 0 {
		next.Interval = cfg.Default
	}
	return next
}
