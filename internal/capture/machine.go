package capture

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
)

// ErrStaleLoad is returned when an image completion arrives for a load that
// has since been superseded.
var ErrStaleLoad = errors.New("stale image load")

// LoadToken identifies one image load. Later loads carry larger tokens.
type LoadToken uint64

// Pointer is a raw pointer event as reported by a host.
type Pointer struct {
	// Position relative to the top-left of the drawing surface.
	Position geometry.Point `json:"position"`
	// Viewport is the backing buffer size at the time of the event. Zero keeps
	// the current geometry.
	Viewport geometry.Size `json:"viewport"`
	// Rendered is the on-screen size of the surface when it differs from the
	// buffer. Zero means 1:1.
	Rendered geometry.Size `json:"rendered"`
}

// Snapshot is the read-only view that renderers and hosts pull after each
// transition.
type Snapshot struct {
	Points       []geometry.Point          `json:"points"`
	Status       Status                    `json:"status"`
	Preview      *Preview                  `json:"preview,omitempty"`
	Geometry     *geometry.DisplayGeometry `json:"geometry,omitempty"`
	MagnetRadius float64                   `json:"magnet_radius"`
	Active       bool                      `json:"active"`
	Loading      bool                      `json:"loading"`
	Load         LoadToken                 `json:"load"`
}

// Machine drives a Session from raw host events. It owns the current display
// geometry, the load token and the hover preview.
//
// A Machine must be used from a single goroutine.
type Machine struct {
	cfg Config

	session  Session
	geom     geometry.DisplayGeometry
	hasImage bool
	active   bool

	latest  LoadToken
	loading bool

	hover   *geometry.Point
	preview *Preview
}

// NewMachine creates a machine with no image loaded.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	return &Machine{cfg: cfg, session: NewSession()}, nil
}

// Config returns the capture configuration.
func (m *Machine) Config() Config { return m.cfg }

// Session returns a copy of the current session.
func (m *Machine) Session() Session { return m.session.Clone() }

// Active reports whether pointer input is currently accepted.
func (m *Machine) Active() bool { return m.active }

// Geometry returns the current display geometry and whether an image is loaded.
func (m *Machine) Geometry() (geometry.DisplayGeometry, bool) {
	return m.geom, m.hasImage
}

// BeginLoad starts a new image load. Capture is disabled until the returned
// token completes through ImageReady or CancelLoad.
func (m *Machine) BeginLoad() LoadToken {
	m.latest++
	m.loading = true
	m.active = false
	m.clearHover()
	slog.Debug("Image load started", "token", m.latest)
	return m.latest
}

// CancelLoad ends a load that failed before producing an image. Capture is
// restored on the previously loaded image, if any.
func (m *Machine) CancelLoad(token LoadToken) error {
	if !m.current(token) {
		return fmt.Errorf("cancel load %d: %w", token, ErrStaleLoad)
	}
	m.loading = false
	m.active = m.hasImage
	slog.Debug("Image load cancelled", "token", token, "restored", m.active)
	return nil
}

// ImageReady completes a load. Stale tokens are discarded with ErrStaleLoad.
// A valid completion replaces the geometry and starts a fresh session.
func (m *Machine) ImageReady(token LoadToken, image, viewport geometry.Size) error {
	if !m.current(token) {
		slog.Debug("Discarding stale image completion", "token", token, "latest", m.latest)
		return fmt.Errorf("image ready %d: %w", token, ErrStaleLoad)
	}

	g, err := geometry.ComputeGeometry(image, viewport)
	m.loading = false
	if err != nil {
		m.active = m.hasImage
		return err
	}

	m.geom = g
	m.hasImage = true
	m.active = true
	m.session = NewSession()
	m.clearHover()
	slog.Debug("Image ready", "token", token, "image", image.String(), "viewport", viewport.String(), "scale", g.Scale)
	return nil
}

// Load is BeginLoad followed by ImageReady for hosts that decode synchronously.
func (m *Machine) Load(image, viewport geometry.Size) error {
	return m.ImageReady(m.BeginLoad(), image, viewport)
}

// Resize recomputes the geometry for a new viewport. Points are kept because
// they are stored in image-native space.
func (m *Machine) Resize(viewport geometry.Size) (Outcome, error) {
	if !m.hasImage {
		return OutcomeNoActiveImage, nil
	}
	if err := m.syncViewport(viewport); err != nil {
		return OutcomeRejected, err
	}
	return OutcomeResized, nil
}

// PointerDown adds the mapped point to the session.
func (m *Machine) PointerDown(p Pointer) (Outcome, error) {
	if !m.active {
		return OutcomeNoActiveImage, nil
	}
	pt, err := m.toImage(p)
	if err != nil {
		return OutcomeRejected, err
	}

	next, out := AddPoint(m.session, pt, m.cfg)
	m.session = next
	m.hover = &pt
	m.refreshPreview()
	slog.Debug("Pointer down", "x", pt.X, "y", pt.Y, "outcome", out.String(), "points", len(next.Points))
	return out, nil
}

// PointerMove updates the hover preview.
func (m *Machine) PointerMove(p Pointer) (Outcome, error) {
	if !m.active {
		return OutcomeNoActiveImage, nil
	}
	pt, err := m.toImage(p)
	if err != nil {
		return OutcomeRejected, err
	}
	m.hover = &pt
	if m.refreshPreview() {
		return OutcomePreviewUpdated, nil
	}
	return OutcomePreviewCleared, nil
}

// PointerLeave clears the hover preview.
func (m *Machine) PointerLeave() Outcome {
	if !m.active {
		return OutcomeNoActiveImage
	}
	m.clearHover()
	return OutcomePreviewCleared
}

// Undo removes the last point.
func (m *Machine) Undo() Outcome {
	if !m.active {
		return OutcomeNoActiveImage
	}
	next, out := Undo(m.session)
	m.session = next
	m.refreshPreview()
	return out
}

// Reset clears the session.
func (m *Machine) Reset() Outcome {
	if !m.active {
		return OutcomeNoActiveImage
	}
	m.session = Reset()
	m.refreshPreview()
	return OutcomeReset
}

// Snapshot returns a copy of the state for rendering.
func (m *Machine) Snapshot() Snapshot {
	points := make([]geometry.Point, len(m.session.Points))
	copy(points, m.session.Points)

	s := Snapshot{
		Points:       points,
		Status:       m.session.Status,
		MagnetRadius: m.cfg.MagnetRadius,
		Active:       m.active,
		Loading:      m.loading,
		Load:         m.latest,
	}
	if m.preview != nil {
		pv := *m.preview
		s.Preview = &pv
	}
	if m.hasImage {
		g := m.geom
		s.Geometry = &g
	}
	return s
}

func (m *Machine) current(token LoadToken) bool {
	return token != 0 && token == m.latest
}

func (m *Machine) toImage(p Pointer) (geometry.Point, error) {
	if err := m.syncViewport(p.Viewport); err != nil {
		return geometry.Point{}, err
	}
	pt, err := geometry.ToImageSpaceRendered(p.Position, p.Rendered, m.geom)
	if err != nil {
		return geometry.Point{}, err
	}
	if !InRange(pt.X) || !InRange(pt.Y) {
		return geometry.Point{}, fmt.Errorf("pointer maps to (%g, %g): %w", pt.X, pt.Y, ErrOutOfRange)
	}
	return pt, nil
}

// syncViewport replaces the geometry when the viewport changed. A zero
// viewport keeps the current one.
func (m *Machine) syncViewport(viewport geometry.Size) error {
	if viewport.IsZero() || viewport == m.geom.Viewport {
		return nil
	}
	g, err := geometry.ComputeGeometry(m.geom.Image, viewport)
	if err != nil {
		return err
	}
	m.geom = g
	return nil
}

// refreshPreview recomputes the preview from the last hover position and
// reports whether one applies.
func (m *Machine) refreshPreview() bool {
	if m.hover == nil {
		m.preview = nil
		return false
	}
	pv, ok := PreviewTarget(m.session, *m.hover, m.cfg)
	if !ok {
		m.preview = nil
		return false
	}
	m.preview = &pv
	return true
}

func (m *Machine) clearHover() {
	m.hover = nil
	m.preview = nil
}
