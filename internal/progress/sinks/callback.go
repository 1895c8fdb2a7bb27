package sinks

import "github.com/atoombs-lib/kb-linkcheck/internal/progress"

// Callbacks routes progress messages to per-stage handler functions, matching
// the notification channels an interactive caller (CLI or UI) wires up. Nil
// handlers are skipped.
type Callbacks struct {
	DiscoverStart    func(msg string)
	DiscoverProgress func(msg string)
	DiscoverEnd      func(msg string)
	CheckStart       func(msg string)
	CheckProgress    func(msg string)
	CheckEnd         func(msg string)
	AnalyzeStart     func(msg string)
	AnalyzeProgress  func(msg string)
	AnalyzeEnd       func(msg string)
	Failure          func(msg string)
}

// Consume dispatches the event to the matching handler.
func (c *Callbacks) Consume(evt progress.Event) {
	if evt.Kind == progress.KindFailure {
		call(c.Failure, evt.Message)
		return
	}
	switch evt.Stage {
	case progress.StageDiscover:
		c.dispatch(evt.Kind, c.DiscoverStart, c.DiscoverProgress, c.DiscoverEnd, evt.Message)
	case progress.StageCheck:
		c.dispatch(evt.Kind, c.CheckStart, c.CheckProgress, c.CheckEnd, evt.Message)
	case progress.StageAnalyze:
		c.dispatch(evt.Kind, c.AnalyzeStart, c.AnalyzeProgress, c.AnalyzeEnd, evt.Message)
	}
}

func (c *Callbacks) dispatch(kind progress.Kind, start, prog, end func(string), msg string) {
	switch kind {
	case progress.KindStart:
		call(start, msg)
	case progress.KindProgress:
		call(prog, msg)
	case progress.KindEnd:
		call(end, msg)
	}
}

func call(fn func(string), msg string) {
	if fn != nil {
		fn(msg)
	}
}
