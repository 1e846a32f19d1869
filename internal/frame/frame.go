// Package frame carries captured camera frames from the shell to the
// attendance services.
package frame

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	// ErrNoFrame is returned by a Slot that has not received a frame yet.
	ErrNoFrame = errors.New("no frame captured yet")
	// ErrUnsupportedFormat is returned for data that is not a known image format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Image formats recognised by DetectFormat.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatWebP = "webp"
)

// Frame is one still image as captured.
type Frame struct {
	Data       []byte
	Format     string
	CapturedAt time.Time
}

// New wraps raw image bytes, sniffing the format.
func New(data []byte, capturedAt time.Time) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty frame: %w", ErrUnsupportedFormat)
	}
	format := DetectFormat(data)
	if format == "" {
		return Frame{}, ErrUnsupportedFormat
	}
	return Frame{Data: data, Format: format, CapturedAt: capturedAt}, nil
}

// MIMEType returns the content type for the frame's format.
func (f Frame) MIMEType() string {
	if f.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + f.Format
}

// Source provides the current frame.
type Source interface {
	Current(ctx context.Context) (Frame, error)
}

// Slot holds the latest frame pushed by the shell. Only one frame is kept.
type Slot struct {
	mu    sync.RWMutex
	frame Frame
	set   bool
}

func NewSlot() *Slot {
	return &Slot{}
}

// Put replaces the held frame.
func (s *Slot) Put(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.set = true
}

// Current returns the latest frame or ErrNoFrame.
func (s *Slot) Current(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Frame{}, ErrNoFrame
	}
	return s.frame, nil
}

// FileSource reads the frame from an image file on every call.
type FileSource struct {
	Path string
}

func (s FileSource) Current(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame: %w", err)
	}
	capturedAt := time.Now()
	if info, err := os.Stat(s.Path); err == nil {
		capturedAt = info.ModTime()
	}
	f, err := New(data, capturedAt)
	if err != nil {
		return Frame{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return f, nil
}

// DetectFormat detects the image format from magic bytes. It returns "" for
// unknown data.
func DetectFormat(data []byte) string {
	if len(data) < 8 {
		return ""
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return FormatJPEG
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return FormatPNG
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return FormatGIF
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return FormatBMP
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return FormatWebP
	}
	return ""
}
