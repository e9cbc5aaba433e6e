// Package capture implements the interactive polygon-capture state machine.
//
// The reducer functions in this file take a Session value and return the next
// one; they never mutate their input. Machine wraps them for hosts that feed
// raw pointer events.
package capture

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
)

const (
	// DefaultMagnetRadius is the snap-to-close distance in image-native pixels.
	DefaultMagnetRadius = 30.0

	// DefaultMinPointsToClose is the smallest polygon (a triangle) that may be closed.
	DefaultMinPointsToClose = 3
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusEmpty Status = iota
	StatusDrawing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusDrawing:
		return "drawing"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*s = StatusEmpty
	case "drawing":
		*s = StatusDrawing
	case "closed":
		*s = StatusClosed
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// Config holds the capture tuning knobs.
type Config struct {
	MagnetRadius     float64
	MinPointsToClose int
}

// DefaultConfig returns the capture defaults.
func DefaultConfig() Config {
	return Config{
		MagnetRadius:     DefaultMagnetRadius,
		MinPointsToClose: DefaultMinPointsToClose,
	}
}

// Validate checks that the configuration can produce a valid closed polygon.
func (c Config) Validate() error {
	if c.MagnetRadius < 0 {
		return fmt.Errorf("invalid magnet radius: %g (must be >= 0)", c.MagnetRadius)
	}
	if c.MinPointsToClose < DefaultMinPointsToClose {
		return fmt.Errorf("invalid min points to close: %d (must be >= %d)", c.MinPointsToClose, DefaultMinPointsToClose)
	}
	return nil
}

// Session is one annotation in progress.
type Session struct {
	Points []geometry.Point `json:"points"`
	Status Status           `json:"status"`
}

// NewSession returns an empty session.
func NewSession() Session {
	return Session{Status: StatusEmpty}
}

// Len returns the number of captured points, including a closing duplicate.
func (s Session) Len() int { return len(s.Points) }

// Closed reports whether the polygon has been closed.
func (s Session) Closed() bool { return s.Status == StatusClosed }

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	return Session{Points: clonePoints(s.Points), Status: s.Status}
}

var (
	errStatusMismatch = errors.New("status does not match point count")
	errNotClosedExact = errors.New("closed polygon does not end at its first point")
)

// Check verifies the session invariants.
func (s Session) Check() error {
	n := len(s.Points)
	switch s.Status {
	case StatusEmpty:
		if n != 0 {
			return fmt.Errorf("%w: empty with %d points", errStatusMismatch, n)
		}
	case StatusDrawing:
		if n == 0 {
			return fmt.Errorf("%w: drawing with no points", errStatusMismatch)
		}
	case StatusClosed:
		if n < DefaultMinPointsToClose+1 {
			return fmt.Errorf("%w: closed with %d points", errStatusMismatch, n)
		}
		if s.Points[n-1] != s.Points[0] {
			return errNotClosedExact
		}
	default:
		return fmt.Errorf("unknown status %d", int(s.Status))
	}
	return nil
}

// Outcome reports what a transition did. No-op outcomes are not errors.
type Outcome int

const (
	OutcomeAppended Outcome = iota
	OutcomeClosed
	OutcomeUndone
	OutcomeReset
	OutcomeNothingToUndo
	OutcomeIgnoredClosed
	OutcomeNoActiveImage
	OutcomePreviewUpdated
	OutcomePreviewCleared
	OutcomeImageLoaded
	OutcomeResized
	OutcomeRejected
	OutcomeLoading
	OutcomeLoadCancelled
)

var outcomeNames = map[Outcome]string{
	OutcomeAppended:       "appended",
	OutcomeClosed:         "closed",
	OutcomeUndone:         "undone",
	OutcomeReset:          "reset",
	OutcomeNothingToUndo:  "nothing_to_undo",
	OutcomeIgnoredClosed:  "ignored_closed",
	OutcomeNoActiveImage:  "no_active_image",
	OutcomePreviewUpdated: "preview_updated",
	OutcomePreviewCleared: "preview_cleared",
	OutcomeImageLoaded:    "image_loaded",
	OutcomeResized:        "resized",
	OutcomeRejected:       "rejected",
	OutcomeLoading:        "loading",
	OutcomeLoadCancelled:  "load_cancelled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, name := range outcomeNames {
		if name == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(b))
}

// Changed reports whether the outcome mutated the session points or status.
func (o Outcome) Changed() bool {
	switch o {
	case OutcomeAppended, OutcomeClosed, OutcomeUndone, OutcomeReset, OutcomeImageLoaded:
		return true
	default:
		return false
	}
}

// AddPoint appends p, or closes the polygon when the magnet rule fires.
//
// The magnet rule applies while drawing with at least cfg.MinPointsToClose
// points: if p lies within cfg.MagnetRadius of the first point, an exact copy
// of the first point is appended instead of p and the session closes.
func AddPoint(s Session, p geometry.Point, cfg Config) (Session, Outcome) {
	switch s.Status {
	case StatusClosed:
		return s, OutcomeIgnoredClosed
	case StatusEmpty:
		return Session{Points: []geometry.Point{p}, Status: StatusDrawing}, OutcomeAppended
	}

	if snapsToFirst(s, p, cfg) {
		return Session{Points: appendPoint(s.Points, s.Points[0]), Status: StatusClosed}, OutcomeClosed
	}
	return Session{Points: appendPoint(s.Points, p), Status: StatusDrawing}, OutcomeAppended
}

// Undo removes the last point of an open polygon.
func Undo(s Session) (Session, Outcome) {
	switch s.Status {
	case StatusEmpty:
		return s, OutcomeNothingToUndo
	case StatusClosed:
		return s, OutcomeIgnoredClosed
	}
	if len(s.Points) <= 1 {
		return NewSession(), OutcomeUndone
	}
	return Session{Points: clonePoints(s.Points[:len(s.Points)-1]), Status: StatusDrawing}, OutcomeUndone
}

// Reset discards all points.
func Reset() Session {
	return NewSession()
}

// Preview is what the renderer should draw as the in-progress edge end.
type Preview struct {
	Target geometry.Point `json:"target"`
	Snaps  bool           `json:"snaps"`
}

// PreviewTarget mirrors the magnet rule for the hovering pointer so the user
// sees whether a click would close the polygon. It reports false when no
// preview applies.
func PreviewTarget(s Session, pointer geometry.Point, cfg Config) (Preview, bool) {
	if s.Status != StatusDrawing {
		return Preview{}, false
	}
	if snapsToFirst(s, pointer, cfg) {
		return Preview{Target: s.Points[0], Snaps: true}, true
	}
	return Preview{Target: pointer}, true
}

func snapsToFirst(s Session, p geometry.Point, cfg Config) bool {
	if len(s.Points) < cfg.MinPointsToClose || len(s.Points) == 0 {
		return false
	}
	return geometry.Distance(p, s.Points[0]) <= cfg.MagnetRadius
}

func appendPoint(pts []geometry.Point, p geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(pts), len(pts)+1)
	copy(out, pts)
	return append(out, p)
}

func clonePoints(pts []geometry.Point) []geometry.Point {
	if pts == nil {
		return nil
	}
	out := make([]geometry.Point, len(pts))
	copy(out, pts)
	return out
}
