// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestMacModesProduceStableKeySizedDigests(t *testing.T) {
	for name, mode := range macModes {
		key := make([]byte, mode.keySize)
		for i := range key {
			key[i] = byte(i + 1)
		}

		h1 := mode.new(key)
		h1.Write([]byte("packet payload"))
		sum1 := h1.Sum(nil)

		h2 := mode.new(key)
		h2.Write([]byte("packet payload"))
		sum2 := h2.Sum(nil)

		if string(sum1) != string(sum2) {
			t.Errorf("%s: two MACs over identical input disagree", name)
		}

		h3 := mode.new(key)
		h3.Write([]byte("different payload"))
		if string(h3.Sum(nil)) == string(sum1) {
			t.Errorf("%s: MAC did not change with the input", name)
		}
	}
}
