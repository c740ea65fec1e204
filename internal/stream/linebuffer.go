// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "bytes"

// LineBuffer accumulates raw body chunks and hands out complete lines.
// Bytes after the last newline stay buffered until a later chunk completes
// them, so line boundaries never depend on chunk boundaries. It works on
// bytes, which keeps multi-byte runes split across chunks intact.
//
// A LineBuffer is owned by a single reader and is not safe for concurrent
// use.
type LineBuffer struct {
	buf []byte
}

// Write appends a chunk. It never fails.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Lines removes and returns every complete line, without its newline.
// The returned slices do not alias the buffer.
func (b *LineBuffer) Lines() [][]byte {
	last := bytes.LastIndexByte(b.buf, '\n')
	if last < 0 {
		return nil
	}

	complete := b.buf[:last]
	parts := bytes.Split(complete, []byte{'\n'})
	lines := make([][]byte, len(parts))
	for i, p := range parts {
		lines[i] = bytes.Clone(p)
		if lines[i] == nil {
			lines[i] = []byte{}
		}
	}

	rest := copy(b.buf, b.buf[last+1:])
	b.buf = b.buf[:rest]
	return lines
}

// Len returns the number of buffered bytes not yet part of a complete line.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Reset drops the buffered remainder.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}
