// Package imageio loads, crops and fits the images that are annotated.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ImageError represents errors that can occur while loading or transforming an image.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image error in %s: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// ErrEmptyImage is returned for images or crop rectangles with no pixels.
var ErrEmptyImage = errors.New("empty image")

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Frame is a decoded image ready for annotation.
type Frame struct {
	Image     image.Image
	Name      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
}

// Size returns the frame's native size.
func (f *Frame) Size() geometry.Size {
	return geometry.Sz(float64(f.Width), float64(f.Height))
}

// NewFrame wraps an already decoded image.
func NewFrame(img image.Image, name string) (*Frame, error) {
	if img == nil {
		return nil, &ImageError{Operation: "frame", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, &ImageError{Operation: "frame", Err: ErrEmptyImage}
	}
	return &Frame{Image: img, Name: name, Width: b.Dx(), Height: b.Dy()}, nil
}

// Load opens and decodes an image file.
func Load(path string) (*Frame, error) {
	if path == "" {
		return nil, &ImageError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, &ImageError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: Reading user-provided image file path is expected
	if err != nil {
		return nil, &ImageError{Operation: "load", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing image file: %v\n", err)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, &ImageError{Operation: "load", Err: err}
	}

	frame, err := Decode(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	frame.SizeBytes = fi.Size()
	return frame, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte, name string) (*Frame, error) {
	frame, err := Decode(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	frame.SizeBytes = int64(len(data))
	return frame, nil
}

// Decode reads an image in any registered format.
func Decode(r io.Reader, name string) (*Frame, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, &ImageError{Operation: "decode", Err: err}
	}
	frame, err := NewFrame(img, name)
	if err != nil {
		return nil, err
	}
	frame.Format = format
	return frame, nil
}

// Crop cuts rect out of the frame. The rectangle is clamped to the image
// bounds and is given relative to the image's top-left corner.
func Crop(f *Frame, rect image.Rectangle) (*Frame, error) {
	if f == nil || f.Image == nil {
		return nil, &ImageError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	b := f.Image.Bounds()
	r := rect.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, &ImageError{Operation: "crop", Err: fmt.Errorf("%w: crop %v outside %dx%d", ErrEmptyImage, rect, f.Width, f.Height)}
	}

	out := imaging.Crop(f.Image, r)
	return &Frame{
		Image:  out,
		Name:   f.Name,
		Format: f.Format,
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
	}, nil
}

// FitWithin downscales the frame so it fits maxWidth x maxHeight, keeping its
// aspect ratio. Frames that already fit, or a zero limit, are returned as is.
// Uses Lanczos resampling.
func FitWithin(f *Frame, maxWidth, maxHeight int) (*Frame, error) {
	if f == nil || f.Image == nil {
		return nil, &ImageError{Operation: "fit", Err: errors.New("input image is nil")}
	}
	if maxWidth < 0 || maxHeight < 0 {
		return nil, &ImageError{Operation: "fit", Err: fmt.Errorf("invalid limits %dx%d", maxWidth, maxHeight)}
	}
	if maxWidth == 0 || maxHeight == 0 || (f.Width <= maxWidth && f.Height <= maxHeight) {
		return f, nil
	}

	out := imaging.Fit(f.Image, maxWidth, maxHeight, imaging.Lanczos)
	return &Frame{
		Image:  out,
		Name:   f.Name,
		Format: f.Format,
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
	}, nil
}

// ParseRect parses "x,y,w,h" into a rectangle.
func ParseRect(s string) (image.Rectangle, error) {
	var x, y, w, h int
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return image.Rectangle{}, fmt.Errorf("invalid rectangle %q: expected x,y,w,h", s)
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid rectangle %q: width and height must be positive", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}
