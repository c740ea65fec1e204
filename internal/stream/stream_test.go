// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/telemetry"
)

// chunkReader returns one chunk per Read, then err (io.EOF if nil).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func chunks(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

func decode(t *testing.T, r io.ReadCloser, opts ...Option) ([]Event, error) {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	s := NewStream(context.Background(), r, opts...)
	var out []Event
	for {
		ev, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

// =============================================================================
// LINE BUFFER
// =============================================================================

func TestLineBuffer_RetainsPartialLine(t *testing.T) {
	var b LineBuffer

	b.Write([]byte("data: a"))
	assert.Nil(t, b.Lines())
	assert.Equal(t, 7, b.Len())

	b.Write([]byte("bc\n\ndata: d"))
	lines := b.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "data: abc", string(lines[0]))
	assert.Equal(t, "", string(lines[1]))
	assert.Equal(t, "data: d", string(b.buf))

	b.Write([]byte("\n"))
	lines = b.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "data: d", string(lines[0]))
	assert.Zero(t, b.Len())
}

func TestLineBuffer_LinesDoNotAlias(t *testing.T) {
	var b LineBuffer
	b.Write([]byte("one\ntw"))
	lines := b.Lines()
	b.Write([]byte("o\n"))
	assert.Equal(t, "one", string(lines[0]))
}

// =============================================================================
// DECODING
// =============================================================================

func TestStream_ChunkBoundaryIndependence(t *testing.T) {
	frame := `data: {"type":"token","content":"Hi"}` + "\n"

	for i := 0; i <= len(frame); i++ {
		for j := i; j <= len(frame); j++ {
			events, err := decode(t, chunks(frame[:i], frame[i:j], frame[j:]))
			require.ErrorIs(t, err, io.EOF)
			require.Equal(t, []Event{Token("Hi")}, events, "split at %d,%d", i, j)
		}
	}
}

func TestStream_Scenario(t *testing.T) {
	r := chunks(
		`data: {"type":"token","content":"A"}`+"\n",
		`data: {"type":"token","content":"B"}`+"\n",
		`data: {"type":"done","conversation_id":"c1","message_id":"m1"}`+"\n",
	)
	s := NewStream(context.Background(), r, WithLogger(logging.Discard()))

	var got []Event
	for ev, err := range s.All() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Token("A"), Token("B"), Done("c1", "m1")}, got)
	assert.True(t, s.Complete())
}

func TestStream_IgnoresNoiseAndMalformedFrames(t *testing.T) {
	m := telemetry.New()
	body := strings.Join([]string{
		": keep-alive",
		"event: message",
		"",
		`data: {"type":"token","content":`,
		`data: {"type":"progress","pct":10}`,
		`data:{"type":"token","content":"no space"}`,
		`data: {"type":"token","content":"ok"}`,
		`data: {"type":"sources","sources":[{"document_id":"d-1","title":"Reglamento","page":3,"preview":"...","score":0.82}]}`,
		`data: {"type":"error","message":"LLM unavailable"}`,
		"",
	}, "\n")

	events, err := decode(t, chunks(body), WithMetrics(m))
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 3)
	assert.Equal(t, Token("ok"), events[0])
	assert.Equal(t, EventSources, events[1].Type)
	require.Len(t, events[1].Sources, 1)
	assert.Equal(t, model.SourceDocument{DocumentID: "d-1", Title: "Reglamento", Page: 3, Preview: "...", Score: 0.82}, events[1].Sources[0])
	assert.Equal(t, Event{Type: EventError, Message: "LLM unavailable"}, events[2])

	assert.Equal(t, 5.0, frameCount(t, m, telemetry.FrameIgnored))
	assert.Equal(t, 1.0, frameCount(t, m, telemetry.FrameToken))
}

func TestStream_TruncatedStream(t *testing.T) {
	r := chunks(
		`data: {"type":"token","content":"Hola"}`+"\n",
		`data: {"type":"token","content":" mundo"}`+"\n",
		`data: {"type":"done","conversation_id":"c1"`,
	)
	s := NewStream(context.Background(), r, WithLogger(logging.Discard()))

	var got []Event
	for ev, err := range s.All() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Token("Hola"), Token(" mundo")}, got)
	assert.False(t, s.Complete(), "a stream without done is an incomplete turn")

	_, err := s.Next()
	assert.ErrorIs(t, err, io.EOF, "the sequence is not restartable")
}

func TestStream_MultiByteRuneSplitAcrossChunks(t *testing.T) {
	frame := []byte(`data: {"type":"token","content":"año ✓"}` + "\n")
	idx := strings.Index(string(frame), "✓") + 1 // inside the 3-byte rune

	events, err := decode(t, &chunkReader{chunks: [][]byte{frame[:idx], frame[idx:]}})
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []Event{Token("año ✓")}, events)
}

func TestStream_TransportErrorEndsSequence(t *testing.T) {
	r := chunks(`data: {"type":"token","content":"A"}` + "\n")
	r.err = errors.New("connection reset by peer")
	s := NewStream(context.Background(), r, WithLogger(logging.Discard()))

	var got []Event
	var last error
	for ev, err := range s.All() {
		if err != nil {
			last = err
			break
		}
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Token("A")}, got)
	require.Error(t, last)
	assert.Contains(t, last.Error(), "connection reset")
}

func TestStream_EarlyBreak(t *testing.T) {
	r := chunks(
		`data: {"type":"token","content":"A"}`+"\n",
		`data: {"type":"token","content":"B"}`+"\n",
	)
	s := NewStream(context.Background(), r, WithLogger(logging.Discard()))
	for range s.All() {
		break
	}
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, Token("B"), ev)
}

func TestStream_LineTooLong(t *testing.T) {
	r := chunks("data: " + strings.Repeat("x", MaxLineSize+1))
	_, err := decode(t, r)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestStream_CloseAbortsBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewStream(context.Background(), pr, WithLogger(logging.Discard()))

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errc <- err
	}()

	_, err := pw.Write([]byte("data: {\"type\":\"tok"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, `token("Hi")`, Token("Hi").String())
	assert.Equal(t, "done(c1,m1)", Done("c1", "m1").String())
	assert.Equal(t, `error("boom")`, Event{Type: EventError, Message: "boom"}.String())
	assert.Equal(t, "sources(0)", Event{Type: EventSources}.String())
}

func frameCount(t *testing.T, m *telemetry.Metrics, kind string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "ragchat_stream_frames_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// =============================================================================
// HTTP
// =============================================================================

func TestOpen_StreamsFromServer(t *testing.T) {
	var gotAuth string
	var gotBody model.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range []string{
			`data: {"type":"token","content":"Hola"}` + "\n\n",
			`data: {"type":"done","conversation_id":"c-9","message_id":"m-3"}` + "\n\n",
		} {
			io.WriteString(w, frame)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	req := model.ChatRequest{Message: "¿Cuándo es la matrícula?", CategoryID: "cat-1"}
	s, err := Open(context.Background(), srv.Client(), srv.URL+"/api/v1/chat/stream", "tok-1", req,
		WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer s.Close()

	var got []Event
	for ev, err := range s.All() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Token("Hola"), Done("c-9", "m-3")}, got)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, req, gotBody)
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"success":false,"error":"Token has expired"}`)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.Client(), srv.URL, "stale", model.ChatRequest{Message: "hola"})
	assert.Nil(t, s)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "Token has expired", se.Code)
	assert.Empty(t, se.Message)
	assert.Contains(t, se.Error(), "HTTP 401: Token has expired")
}

func TestOpen_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"type":"token","content":"A"}`+"\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, srv.Client(), srv.URL, "tok", model.ChatRequest{Message: "hola"},
		WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer s.Close()

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, Token("A"), ev)

	cancel()
	_, err = s.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseErrorBody(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    string
		wantMessage string
	}{
		{"code only", `{"error":"bad"}`, "bad", ""},
		{"message only", `{"message":"msg"}`, "", "msg"},
		{"both kept apart", `{"success":false,"error":"Token expirado","message":"El token ha expirado."}`, "Token expirado", "El token ha expirado."},
		{"plain text", "  plain text \n", "", "plain text"},
		{"html page", "<html><body>Bad Gateway</body></html>", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := parseErrorBody([]byte(tt.body))
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, msg)
		})
	}

	_, msg := parseErrorBody([]byte(strings.Repeat("x", 500)))
	assert.Len(t, msg, 200)
}
