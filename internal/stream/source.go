package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// Source yields raw records from a live response.
// Next returns either a record or an error, never both; io.EOF means the response ended.
// Close releases the underlying connection and may be called concurrently with Next.
type Source interface {
	Next() ([]byte, error)
	Close() error
}

// Framing selects how a byte stream is split into records
type Framing string

const (
	// FramingLines treats every non-blank line as one record
	FramingLines Framing = "lines"
	// FramingChunks treats every read as one independent record
	FramingChunks Framing = "chunks"
)

const DefaultChunkSize = 1024

// ParseFraming converts a configuration value into a Framing
func ParseFraming(value string) (Framing, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(value))) {
	case FramingLines, "":
		return FramingLines, nil
	case FramingChunks:
		return FramingChunks, nil
	}
	return "", fmt.Errorf("unknown stream framing %q (expected lines or chunks)", value)
}

// NewSource wraps a response body with the requested framing
func NewSource(body io.ReadCloser, framing Framing, chunkSize int) Source {
	if framing == FramingChunks {
		return NewChunkSource(body, chunkSize)
	}
	return NewLineSource(body)
}

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// LineSource splits a body into newline-delimited records.
// Records may span reads. Blank lines and comment lines are skipped and an
// optional "data:" prefix is stripped, so server-sent events work as well.
type LineSource struct {
	reader *bufio.Reader
	closer closeOnce
}

func NewLineSource(body io.ReadCloser) *LineSource {
	return &LineSource{
		reader: bufio.NewReader(body),
		closer: closeOnce{c: body},
	}
}

func (s *LineSource) Next() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			// A partial line is not a record
			return nil, readError(err)
		}
		if record, ok := normalizeLine(line); ok {
			if bytes.Equal(record, doneSentinel) {
				return nil, io.EOF
			}
			return record, nil
		}
		if err != nil {
			return nil, readError(err)
		}
	}
}

func (s *LineSource) Close() error {
	return s.closer.Close()
}

func normalizeLine(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
		if len(line) == 0 {
			return nil, false
		}
	}
	return line, true
}

// ChunkSource treats each read of the body as one complete record
type ChunkSource struct {
	body   io.Reader
	buf    []byte
	err    error
	closer closeOnce
}

func NewChunkSource(body io.ReadCloser, chunkSize int) *ChunkSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkSource{
		body:   body,
		buf:    make([]byte, chunkSize),
		closer: closeOnce{c: body},
	}
}

func (s *ChunkSource) Next() ([]byte, error) {
	for s.err == nil {
		n, err := s.body.Read(s.buf)
		if err != nil {
			s.err = readError(err)
		}
		if chunk := bytes.TrimSpace(s.buf[:n]); len(chunk) > 0 {
			return append([]byte(nil), chunk...), nil
		}
	}
	return nil, s.err
}

func (s *ChunkSource) Close() error {
	return s.closer.Close()
}

// readError maps a body read failure onto the error taxonomy
func readError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var transportErr *chat.TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	return &chat.TransportError{Err: err}
}

type closeOnce struct {
	c    io.Closer
	once sync.Once
	err  error
}

func (c *closeOnce) Close() error {
	c.once.Do(func() {
		c.err = c.c.Close()
	})
	return c.err
}
