package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"llmdispatch/internal/core"
)

// maxLineBytes bounds a single stream line. Provider deltas are small;
// anything past this is a misbehaving endpoint.
const maxLineBytes = 1 << 20

var errLineTooLong = errors.New("stream line exceeds the size limit")

// sseOptions configure SSE decoding for one profile.
type sseOptions struct {
	// deltaPath is the gjson path to the text delta inside an event's
	// data. Empty means the data payload is the delta itself.
	deltaPath string
	// doneData is the sentinel data payload that cleanly ends the stream.
	// When set, EOF without the sentinel is a truncation.
	doneData string
	// doneEvent is an event name that cleanly ends the stream.
	doneEvent string
}

// sseStream decodes "data:" records from a server-sent-events body into
// text deltas. Recv blocks until the next non-empty delta.
type sseStream struct {
	provider string
	body     io.ReadCloser
	r        *bufio.Reader
	opts     sseOptions
	onChunk  func()

	done bool
	err  error
}

func newSSEStream(provider string, body io.ReadCloser, opts sseOptions, onChunk func()) *sseStream {
	r := bufio.NewReaderSize(body, 32*1024)
	return &sseStream{provider: provider, body: body, r: r, opts: opts, onChunk: onChunk}
}

func (s *sseStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.done {
		return "", io.EOF
	}

	for {
		event, data, err := s.readEvent()
		if err != nil {
			s.err = s.finish(err)
			return "", s.err
		}

		if s.opts.doneEvent != "" && event == s.opts.doneEvent {
			s.done = true
			return "", io.EOF
		}
		if s.opts.doneData != "" && data == s.opts.doneData {
			s.done = true
			return "", io.EOF
		}
		if data == "" {
			continue
		}

		delta := data
		if s.opts.deltaPath != "" {
			delta = gjson.Get(data, s.opts.deltaPath).String()
		}
		if delta == "" {
			// Control events (message_start, ping, role chunks) carry no
			// text; skip them.
			continue
		}
		if s.onChunk != nil {
			s.onChunk()
		}
		return delta, nil
	}
}

// finish classifies the end of the body. A stream that promised a done
// sentinel and never delivered it ended mid-flight even if the connection
// closed cleanly.
func (s *sseStream) finish(err error) error {
	if err == io.EOF {
		if s.opts.doneData != "" || s.opts.doneEvent != "" {
			return &core.StreamTruncatedError{Provider: s.provider}
		}
		return io.EOF
	}
	return &core.StreamTruncatedError{Provider: s.provider, Err: err}
}

// readEvent reads one SSE event: field lines up to a blank-line
// terminator. io.EOF is returned only at a clean event boundary; EOF with
// fields pending comes back as io.ErrUnexpectedEOF.
func (s *sseStream) readEvent() (event, data string, err error) {
	var dataLines []string
	pending := false

	for {
		line, err := s.readLine()
		if err != nil {
			if err == io.EOF && pending {
				return "", "", io.ErrUnexpectedEOF
			}
			return "", "", err
		}

		if line == "" {
			if !pending {
				continue
			}
			return event, strings.Join(dataLines, "\n"), nil
		}
		pending = true

		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
}

// readLine reads one line, aborting as soon as the accumulated bytes pass
// maxLineBytes so an unbounded line never buffers fully.
func (s *sseStream) readLine() (string, error) {
	var buf []byte
	for {
		frag, err := s.r.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > maxLineBytes {
			return "", errLineTooLong
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				// Trailing bytes without a newline are a cut-off line.
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		return strings.TrimRight(string(buf), "\r\n"), nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// jsonLinesStream decodes newline-delimited JSON events into text deltas.
// JSONL has no end sentinel; EOF at a line boundary is a clean end, a
// partial or unparseable final line is a truncation.
type jsonLinesStream struct {
	provider  string
	body      io.ReadCloser
	scanner   *bufio.Scanner
	deltaPath string
	onChunk   func()

	err error
}

func newJSONLinesStream(provider string, body io.ReadCloser, deltaPath string, onChunk func()) *jsonLinesStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &jsonLinesStream{
		provider:  provider,
		body:      body,
		scanner:   scanner,
		deltaPath: deltaPath,
		onChunk:   onChunk,
	}
}

func (s *jsonLinesStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			s.err = &core.StreamTruncatedError{Provider: s.provider}
			return "", s.err
		}

		delta := line
		if s.deltaPath != "" {
			delta = gjson.Get(line, s.deltaPath).String()
		}
		if delta == "" {
			continue
		}
		if s.onChunk != nil {
			s.onChunk()
		}
		return delta, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.err = &core.StreamTruncatedError{Provider: s.provider, Err: err}
	} else {
		s.err = io.EOF
	}
	return "", s.err
}

func (s *jsonLinesStream) Close() error {
	return s.body.Close()
}
