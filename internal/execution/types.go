package execution

import (
	"time"

	"github.com/payflowhq/payflow/internal/model"
)

// RunState is the lifecycle of one payment execution. Transitions are
// strictly forward; terminal states are success, failed and timed_out.
type RunState string

const (
	StateIdle             RunState = "idle"
	StateSwitchingNetwork RunState = "switching_network"
	StateApproving        RunState = "approving"
	StateSending          RunState = "sending"
	StateConfirming       RunState = "confirming"
	StateSuccess          RunState = "success"
	StateFailed           RunState = "failed"
	StateTimedOut         RunState = "timed_out"
)

func (s RunState) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// Snapshot is one immutable observation of a run. The engine emits a fresh
// snapshot on every transition; consumers never see shared mutable state.
type Snapshot struct {
	State     RunState                `json:"state"`
	Message   string                  `json:"message,omitempty"`
	TxHash    string                  `json:"tx_hash,omitempty"`
	TxLink    string                  `json:"tx_link,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Steps     []model.TransactionStep `json:"steps"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Steps = make([]model.TransactionStep, len(s.Steps))
	copy(out.Steps, s.Steps)
	return out
}

// Options tunes receipt polling. ConfirmTimeout bounds the total wait for a
// confirmation; expiry is a distinct outcome, not a failure.
type Options struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 10 * time.Minute,
	}
}
