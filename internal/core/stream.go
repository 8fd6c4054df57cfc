package core

import (
	"errors"
	"io"
	"strings"
)

// Stream is a pull-based iterator over text deltas. Recv returns io.EOF
// once the stream finishes cleanly; any other error is terminal. The
// stream is finite and not restartable. Close releases the underlying
// connection and is safe to call at any point, including mid-stream.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Drain consumes a stream to completion and returns the concatenated text.
// The stream is always closed. A partial prefix is returned alongside the
// error when the stream fails mid-flight.
func Drain(s Stream) (string, error) {
	defer func() { _ = s.Close() }()

	var b strings.Builder
	for {
		delta, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		b.WriteString(delta)
	}
}

// sliceStream replays a fixed set of deltas. Used where an already
// materialized result must be exposed through the Stream interface.
type sliceStream struct {
	deltas []string
	pos    int
}

// NewSliceStream returns a Stream over the given deltas.
func NewSliceStream(deltas ...string) Stream {
	return &sliceStream{deltas: deltas}
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.deltas)
	return nil
}
