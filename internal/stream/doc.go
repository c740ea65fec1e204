// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chat service's streaming answer.
//
// The response body is a series of lines of the form
//
//	data: {"type":"token","content":"..."}
//
// read incrementally. Lines without the data prefix, payloads that fail to
// decode, and unknown event types are skipped without ending the stream.
//
// Example:
//
//	s, err := stream.Open(ctx, nil, base+"/chat/stream", token, req)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for ev, err := range s.All() {
//	    ...
//	}
package stream
