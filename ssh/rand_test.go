// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestHardenedRandProducesDistinctOutput(t *testing.T) {
	r := HardenedRand()
	a := make([]byte, 32)
	b := make([]byte, 32)
	if _, err := r.Read(a); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := r.Read(b); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(a) == string(b) {
		t.Error("two consecutive reads produced identical output")
	}
}

func TestHardenedRandFillsBuffer(t *testing.T) {
	r := HardenedRand()
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Read filled %d of %d bytes", n, len(buf))
	}
}
