// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

const (
	macHMACSHA1 = "hmac-sha1"
	macHMACMD5  = "hmac-md5"
)

// macMode describes one MAC algorithm: its output/key size and the
// hash constructor HMAC is built on. A quirkHMACKeySize peer always
// gets a fixed 16-byte key regardless of what keySize says (see
// setupKeys in transport.go).
type macMode struct {
	keySize int
	new     func(key []byte) hash.Hash
}

var macModes = map[string]*macMode{
	macHMACSHA1: {20, func(key []byte) hash.Hash { return hmac.New(sha1.New, key) }},
	macHMACMD5:  {16, func(key []byte) hash.Hash { return hmac.New(md5.New, key) }},
}

// DefaultMACOrder is the MAC preference order used when a
// CryptoConfig doesn't specify one.
var DefaultMACOrder = []string{macHMACSHA1, macHMACMD5}
