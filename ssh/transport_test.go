// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"net"
	"testing"
)

// TestReadPacketDetectsTextDiagnostic exercises the TEXT_DIAGS
// detection on an otherwise unkeyed (plaintext) transport: a peer
// that drops into a line-based diagnostic instead of a framed
// protocol message is flagged via quirkTextDiags and its message
// surfaced as the read error.
func TestReadPacketDetectsTextDiagnostic(t *testing.T) {
	a, b := net.Pipe()
	writer := newTransport(a, nil)
	reader := newTransport(b, nil)

	done := make(chan error, 1)
	go func() {
		err := writer.writePacket([]byte("FATAL: disk quota exceeded"))
		if err == nil {
			err = writer.Flush()
		}
		done <- err
	}()

	_, err := reader.readPacket()
	if werr := <-done; werr != nil {
		t.Fatalf("writePacket: %v", werr)
	}
	if err == nil {
		t.Fatal("expected readPacket to report the text diagnostic as an error")
	}
	if reader.quirks&quirkTextDiags == 0 {
		t.Error("expected quirkTextDiags to be set after a FATAL: diagnostic")
	}
}

// TestReadPacketIgnoresNearMissPrefix guards the exact byte offset:
// a payload that merely contains "FATAL: " starting at index 1 (the
// off-by-one this check used to have) must not trip the diagnostic
// path when its real start (index 0) doesn't match.
func TestReadPacketIgnoresNearMissPrefix(t *testing.T) {
	a, b := net.Pipe()
	writer := newTransport(a, nil)
	reader := newTransport(b, nil)

	payload := append([]byte{'x'}, []byte("FATAL: nope")...)

	done := make(chan error, 1)
	go func() {
		err := writer.writePacket(payload)
		if err == nil {
			err = writer.Flush()
		}
		done <- err
	}()

	got, err := reader.readPacket()
	if werr := <-done; werr != nil {
		t.Fatalf("writePacket: %v", werr)
	}
	if err != nil {
		t.Fatalf("readPacket: unexpected error %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("readPacket = %q, want %q", got, payload)
	}
	if reader.quirks&quirkTextDiags != 0 {
		t.Error("quirkTextDiags should not be set for a non-prefix match")
	}
}
