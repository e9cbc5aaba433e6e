// Package script replays recorded pointer sessions against a capture machine.
//
// A script is YAML (or JSON, which YAML accepts):
//
//	viewport: {width: 600, height: 400}
//	events:
//	  - type: load
//	    image: {width: 400, height: 300}
//	  - {type: down, x: 133.3, y: 0}
//	  - {type: move, x: 200, y: 120}
//	  - type: undo
package script

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"gopkg.in/yaml.v3"
)

// Event types.
const (
	EventLoad   = "load"
	EventBegin  = "begin"
	EventReady  = "ready"
	EventCancel = "cancel"
	EventDown   = "down"
	EventMove   = "move"
	EventLeave  = "leave"
	EventUndo   = "undo"
	EventReset  = "reset"
	EventResize = "resize"
)

// Dim is a width/height pair in scripts.
type Dim struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Size converts to a geometry size. A nil Dim is the zero size.
func (d *Dim) Size() geometry.Size {
	if d == nil {
		return geometry.Size{}
	}
	return geometry.Sz(d.Width, d.Height)
}

// Event is one recorded host event.
type Event struct {
	Type     string  `yaml:"type" json:"type"`
	X        float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y        float64 `yaml:"y,omitempty" json:"y,omitempty"`
	Viewport *Dim    `yaml:"viewport,omitempty" json:"viewport,omitempty"`
	Rendered *Dim    `yaml:"rendered,omitempty" json:"rendered,omitempty"`
	Image    *Dim    `yaml:"image,omitempty" json:"image,omitempty"`
	// Load selects the begun load (1-based) that ready and cancel complete.
	Load int `yaml:"load,omitempty" json:"load,omitempty"`
}

// Script is a parsed event recording.
type Script struct {
	Viewport *Dim    `yaml:"viewport,omitempty" json:"viewport,omitempty"`
	Rendered *Dim    `yaml:"rendered,omitempty" json:"rendered,omitempty"`
	Events   []Event `yaml:"events" json:"events"`
}

// ParseError reports an invalid script.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("script: %v", e.Err)
	}
	return fmt.Sprintf("script event %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a script file.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: script path is user provided
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// Validate checks event types and references.
func (s *Script) Validate() error {
	if len(s.Events) == 0 {
		return &ParseError{Index: -1, Err: errors.New("no events")}
	}
	begun := 0
	for i, ev := range s.Events {
		switch ev.Type {
		case EventLoad:
			begun++
		case EventBegin:
			begun++
		case EventReady, EventCancel:
			if ev.Load < 1 || ev.Load > begun {
				return &ParseError{Index: i, Err: fmt.Errorf("%s refers to load %d but %d loads were begun", ev.Type, ev.Load, begun)}
			}
		case EventResize:
			if ev.Viewport == nil {
				return &ParseError{Index: i, Err: errors.New("resize needs a viewport")}
			}
		case EventDown, EventMove, EventLeave, EventUndo, EventReset:
		case "":
			return &ParseError{Index: i, Err: errors.New("missing event type")}
		default:
			return &ParseError{Index: i, Err: fmt.Errorf("unknown event type %q", ev.Type)}
		}
	}
	return nil
}

// Marshal encodes the script as YAML.
func (s *Script) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
