package script

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
)

// DefaultViewport is the drawing surface size used when a script sets none.
var DefaultViewport = geometry.Sz(600, 400)

// Step records the result of one event.
type Step struct {
	Index   int             `json:"index" yaml:"index"`
	Type    string          `json:"type" yaml:"type"`
	Outcome capture.Outcome `json:"outcome" yaml:"outcome"`
	Error   string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of a replay.
type Result struct {
	Steps []Step           `json:"steps"`
	Final capture.Snapshot `json:"final"`
}

// Errors returns the number of steps that failed.
func (r *Result) Errors() int {
	n := 0
	for _, s := range r.Steps {
		if s.Error != "" {
			n++
		}
	}
	return n
}

// Runner replays scripts against a machine.
type Runner struct {
	Machine *capture.Machine
	// Image is the size used for load and ready events without their own.
	Image geometry.Size
}

// Run replays every event in order. Geometry errors and stale completions are
// recorded on their step and do not stop the replay.
func (r *Runner) Run(s *Script) (*Result, error) {
	if r.Machine == nil {
		return nil, errors.New("script runner has no machine")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	viewport := DefaultViewport
	if s.Viewport != nil {
		viewport = s.Viewport.Size()
	}
	var tokens []capture.LoadToken

	res := &Result{Steps: make([]Step, 0, len(s.Events))}
	for i, ev := range s.Events {
		step := Step{Index: i, Type: ev.Type}
		var err error

		if ev.Viewport != nil {
			viewport = ev.Viewport.Size()
		}
		image := r.Image
		if ev.Image != nil {
			image = ev.Image.Size()
		}

		switch ev.Type {
		case EventLoad:
			token := r.Machine.BeginLoad()
			tokens = append(tokens, token)
			err = r.Machine.ImageReady(token, image, viewport)
			step.Outcome = loadOutcome(err)
		case EventBegin:
			tokens = append(tokens, r.Machine.BeginLoad())
			step.Outcome = capture.OutcomeLoading
		case EventReady:
			err = r.Machine.ImageReady(tokens[ev.Load-1], image, viewport)
			step.Outcome = loadOutcome(err)
		case EventCancel:
			err = r.Machine.CancelLoad(tokens[ev.Load-1])
			step.Outcome = capture.OutcomeLoadCancelled
			if err != nil {
				step.Outcome = capture.OutcomeRejected
			}
		case EventDown:
			step.Outcome, err = r.Machine.PointerDown(r.pointer(ev, viewport, s))
		case EventMove:
			step.Outcome, err = r.Machine.PointerMove(r.pointer(ev, viewport, s))
		case EventLeave:
			step.Outcome = r.Machine.PointerLeave()
		case EventUndo:
			step.Outcome = r.Machine.Undo()
		case EventReset:
			step.Outcome = r.Machine.Reset()
		case EventResize:
			step.Outcome, err = r.Machine.Resize(viewport)
		default:
			return nil, fmt.Errorf("unhandled event type %q", ev.Type)
		}

		if err != nil {
			step.Error = err.Error()
			slog.Debug("Script step failed", "index", i, "type", ev.Type, "error", err)
		}
		res.Steps = append(res.Steps, step)
	}

	res.Final = r.Machine.Snapshot()
	return res, nil
}

func (r *Runner) pointer(ev Event, viewport geometry.Size, s *Script) capture.Pointer {
	rendered := s.Rendered.Size()
	if ev.Rendered != nil {
		rendered = ev.Rendered.Size()
	}
	return capture.Pointer{
		Position: geometry.Pt(ev.X, ev.Y),
		Viewport: viewport,
		Rendered: rendered,
	}
}

func loadOutcome(err error) capture.Outcome {
	if err != nil {
		return capture.OutcomeRejected
	}
	return capture.OutcomeImageLoaded
}
