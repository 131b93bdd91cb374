// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"io"
	"testing"
)

func TestSetOutputRedirectsDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	defaultLogger().Info("hello")
	if buf.Len() == 0 {
		t.Error("expected the redirected default logger to receive output")
	}
}
