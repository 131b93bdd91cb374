// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/cipher"
	"testing"
)

func TestCipherModesRoundTrip(t *testing.T) {
	plaintext := []byte("0123456789abcdef") // one AES block, two DES/Blowfish/CAST5 blocks

	for name, mode := range cipherModes {
		key := make([]byte, mode.keySize)
		for i := range key {
			key[i] = byte(i + 1)
		}
		iv := make([]byte, mode.ivSize)
		for i := range iv {
			iv[i] = byte(i + 2)
		}

		enc, err := mode.create(key, iv, false)
		if err != nil {
			t.Errorf("%s: create(write): %v", name, err)
			continue
		}
		dec, err := mode.create(key, iv, true)
		if err != nil {
			t.Errorf("%s: create(read): %v", name, err)
			continue
		}

		ciphertext := make([]byte, len(plaintext))
		encryptInPlace(t, name, enc, ciphertext, plaintext)

		recovered := make([]byte, len(ciphertext))
		encryptInPlace(t, name, dec, recovered, ciphertext)

		if !bytes.Equal(recovered, plaintext) {
			t.Errorf("%s: round trip = %x, want %x", name, recovered, plaintext)
		}
	}
}

// encryptInPlace drives whichever of cipher.BlockMode/cipher.Stream
// mode.create produced; cipherMode.create's return type is an
// interface{} because the two shapes share no common method set.
func encryptInPlace(t *testing.T, name string, c interface{}, dst, src []byte) {
	t.Helper()
	switch v := c.(type) {
	case cipher.BlockMode:
		v.CryptBlocks(dst, src)
	case cipher.Stream:
		v.XORKeyStream(dst, src)
	default:
		t.Fatalf("%s: unexpected cipher type %T", name, c)
	}
}
