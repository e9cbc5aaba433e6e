package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses "WxH", e.g. "600x400".
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q: expected WxH", s)
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q: %w", s, err)
	}
	size := Sz(width, height)
	if !size.Valid() {
		return Size{}, &GeometryError{Operation: "parse size", Name: "size", Size: size}
	}
	return size, nil
}

// ParsePoint parses "x,y".
func ParsePoint(s string) (Point, error) {
	x, y, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Point{}, fmt.Errorf("invalid point %q: expected x,y", s)
	}
	px, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	py, err := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	if !finite(px) || !finite(py) {
		return Point{}, fmt.Errorf("invalid point %q: coordinates must be finite", s)
	}
	return Pt(px, py), nil
}
