package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrFraming marks failures that make the rest of the stream unreadable.
var ErrFraming = errors.New("stream framing error")

// maxSnippet is how much of an offending line is kept for display.
const maxSnippet = 200

// Format is the detected framing of an input stream.
type Format int

const (
	FormatUnknown Format = iota
	FormatLines
	FormatArray
)

func (f Format) String() string {
	switch f {
	case FormatLines:
		return "jsonl"
	case FormatArray:
		return "array"
	default:
		return "unknown"
	}
}

// FramingError describes a fatal parse failure. Line is zero for array mode.
type FramingError struct {
	Line    int
	Snippet string
	Err     error
}

func (e *FramingError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse JSONL line %d: %v\nLine: %s", e.Line, e.Err, e.Snippet)
	}
	return fmt.Sprintf("parse JSON array: %v", e.Err)
}

func (e *FramingError) Unwrap() []error { return []error{ErrFraming, e.Err} }

// Reader yields one raw JSON value per logical record. It is lazy and can be
// consumed only once.
type Reader struct {
	br     *bufio.Reader
	format Format
	line   int
	dec    *json.Decoder
	done   bool
	err    error
}

// NewReader wraps r. Framing is detected on the first call to Next.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Format reports the detected framing, FormatUnknown before the first
// non-blank line has been seen.
func (r *Reader) Format() Format {
	return r.format
}

// Next returns the next raw value, io.EOF when the stream is exhausted, or a
// *FramingError. After an error every call returns the same error.
func (r *Reader) Next() (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	v, err := r.next()
	if err != nil {
		r.err = err
	}
	return v, err
}

func (r *Reader) next() (any, error) {
	if r.format == FormatArray {
		return r.nextElement()
	}

	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		if r.format == FormatUnknown {
			if trimmed[0] == '[' {
				return r.startArray(line)
			}
			r.format = FormatLines
		}

		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, &FramingError{Line: r.line, Snippet: snippet(trimmed), Err: err}
		}
		return v, nil
	}
}

// readLine returns the next line without its terminator. The final line may
// lack a newline.
func (r *Reader) readLine() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read input: %w", err)
		}
		r.done = true
		if len(line) == 0 {
			return nil, io.EOF
		}
	}
	r.line++
	if r.line == 1 {
		line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// startArray switches to array mode. The already consumed first line is put
// back in front of the remaining stream.
func (r *Reader) startArray(first []byte) (any, error) {
	r.format = FormatArray
	rest := io.MultiReader(bytes.NewReader(append(first, '\n')), r.br)
	r.dec = json.NewDecoder(rest)

	tok, err := r.dec.Token()
	if err != nil {
		return nil, arrayError(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, &FramingError{Err: errors.New("top-level JSON must be an array")}
	}
	return r.nextElement()
}

func (r *Reader) nextElement() (any, error) {
	if r.dec.More() {
		var v any
		if err := r.dec.Decode(&v); err != nil {
			return nil, arrayError(err)
		}
		return v, nil
	}

	// Closing bracket, then nothing but whitespace.
	if _, err := r.dec.Token(); err != nil {
		return nil, arrayError(err)
	}
	if _, err := r.dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level array")
		}
		return nil, &FramingError{Err: err}
	}
	return nil, io.EOF
}

// arrayError wraps a decoder failure. A bare EOF inside the array means the
// document was truncated and must not read as a clean end of stream.
func arrayError(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &FramingError{Err: err}
}

func snippet(line []byte) string {
	if utf8.RuneCount(line) <= maxSnippet {
		return string(line)
	}
	runes := []rune(string(line))
	return string(runes[:maxSnippet])
}
