package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const DefaultMaxFrameSize = 4096

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrInvalidFrame  = errors.New("frame contains a line break")
)

// FrameReader splits a stream into newline-terminated frames.
type FrameReader struct {
	scanner *bufio.Scanner
}

func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	scanner := bufio.NewScanner(r)
	// +1 for the newline itself
	scanner.Buffer(make([]byte, 0, min(maxFrameSize+1, DefaultMaxFrameSize)), maxFrameSize+1)

	return &FrameReader{scanner: scanner}
}

// ReadFrame returns the next frame without its terminator. It returns io.EOF once the peer closes the stream.
func (that *FrameReader) ReadFrame() (string, error) {
	if that.scanner.Scan() {
		return strings.TrimSuffix(that.scanner.Text(), "\r"), nil
	}

	err := that.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return "", ErrFrameTooLarge
	default:
		return "", fmt.Errorf("failed to read frame: %w", err)
	}
}

// WriteFrame writes one frame followed by a newline.
func WriteFrame(w io.Writer, frame string) error {
	if strings.ContainsAny(frame, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}

	if _, err := io.WriteString(w, frame+"\n"); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}
