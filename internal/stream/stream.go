// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/jeranaias/ragchat/internal/telemetry"
)

const (
	// readSize is the size of each raw body read.
	readSize = 4 << 10

	// MaxLineSize bounds a single unterminated line.
	MaxLineSize = 1 << 20
)

var (
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("stream closed")

	// ErrLineTooLong ends a stream whose current line exceeds MaxLineSize.
	ErrLineTooLong = fmt.Errorf("stream line exceeds %d bytes", MaxLineSize)
)

// =============================================================================
// STREAM
// =============================================================================

// Stream is a lazy, single-pass sequence of Events decoded from a response
// body. Next reads from the network only when no complete line is pending.
//
// Next and All must be called from one goroutine. Close may be called from
// any goroutine to abort a blocked read.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	buf     LineBuffer
	chunk   []byte
	pending [][]byte
	err     error
	sawDone bool
	closed  atomic.Bool

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger for discarded frames.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// NewStream decodes body. ctx is consulted to report cancellation as
// ctx.Err() instead of a transport error.
func NewStream(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	s := &Stream{
		ctx:    ctx,
		body:   body,
		chunk:  make([]byte, readSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next event. It returns io.EOF once the body ends
// normally, and the terminal error after a transport failure. Every later
// call returns the same error.
func (s *Stream) Next() (Event, error) {
	for {
		if ev, ok := s.nextPending(); ok {
			return ev, nil
		}
		if s.err != nil {
			return Event{}, s.err
		}
		s.fill()
	}
}

// All returns an iterator over the remaining events. A terminal error other
// than io.EOF is yielded once as the last pair.
func (s *Stream) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Complete reports whether a done event has been yielded.
func (s *Stream) Complete() bool {
	return s.sawDone
}

// Close aborts the underlying transport. It is safe to call more than once
// and concurrently with Next.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.body.Close()
}

func (s *Stream) nextPending() (Event, bool) {
	for len(s.pending) > 0 {
		line := s.pending[0]
		s.pending = s.pending[1:]

		ev, ok := ParseLine(line)
		if !ok {
			if len(line) > 0 {
				s.metrics.StreamFrame(telemetry.FrameIgnored)
				s.logger.Debug("STREAM_FRAME_IGNORED", "bytes", len(line))
			}
			continue
		}
		s.metrics.StreamFrame(string(ev.Type))
		if ev.Type == EventDone {
			s.sawDone = true
		}
		return ev, true
	}
	return Event{}, false
}

// fill performs one read and sets s.pending or s.err.
func (s *Stream) fill() {
	if s.closed.Load() {
		s.err = ErrClosed
		return
	}

	n, err := s.body.Read(s.chunk)
	if n > 0 {
		s.buf.Write(s.chunk[:n])
		s.pending = s.buf.Lines()
		if s.buf.Len() > MaxLineSize {
			s.err = ErrLineTooLong
			s.body.Close()
			return
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if s.buf.Len() > 0 {
			s.logger.Debug("STREAM_TRAILING_BYTES_DROPPED", "bytes", s.buf.Len())
			s.buf.Reset()
		}
		s.err = io.EOF
	case s.closed.Load():
		s.err = ErrClosed
	case s.ctx != nil && s.ctx.Err() != nil:
		s.err = s.ctx.Err()
	default:
		s.err = fmt.Errorf("read stream: %w", err)
	}
}
