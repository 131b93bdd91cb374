// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := newError(BadData, "truncated packet")
	if got, want := e.Error(), "ssh: bad data: truncated packet"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := newError(Timeout, "")
	if got, want := bare.Error(), "ssh: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	e := wrapError(Read, "reading packet failed", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is should see through wrapError's Unwrap")
	}
}

func TestUnexpectedMessageError(t *testing.T) {
	err := UnexpectedMessageError{expected: msgNewKeys, got: msgKexInit}
	want := "ssh: unexpected message type 20 (expected 21)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
