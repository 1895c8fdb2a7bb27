// Package progress defines the notification events emitted by the pipeline
// and the non-blocking hub that fans them out to pluggable sinks (logging,
// metrics, UI callbacks). The pipeline stays unaware of how notifications
// are displayed.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which pipeline stage an Event belongs to.
type Stage string

// Pipeline stages that emit progress events.
const (
	StageDiscover Stage = "discover"
	StageCheck    Stage = "check"
	StageAnalyze  Stage = "analyze"
)

// Kind distinguishes the milestone within a stage.
type Kind string

// Supported event kinds. Failure is only emitted when the run cannot proceed
// past the Discover stage.
const (
	KindStart    Kind = "start"
	KindProgress Kind = "progress"
	KindEnd      Kind = "end"
	KindFailure  Kind = "failure"
)

// Event captures one human-readable progress notification.
type Event struct {
	// RunID identifies the pipeline invocation that produced the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the pipeline stage the event belongs to.
	Stage Stage
	// Kind is the milestone within the stage.
	Kind Kind
	// Message is the display string handed to callers.
	Message string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageDiscover, StageCheck, StageAnalyze:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	switch e.Kind {
	case KindStart, KindProgress, KindEnd, KindFailure:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
