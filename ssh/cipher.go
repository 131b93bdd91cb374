// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rc4"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
)

const (
	cipher3DES      = "3des-cbc"
	cipherAES128    = "aes128-cbc"
	cipherBlowfish  = "blowfish-cbc"
	cipherCAST128   = "cast128-cbc"
	cipherArcfour   = "arcfour"
)

// cipherMode describes the key and iv size and the function used to
// instantiate a cipher.Stream or cipher.BlockMode for one cipher
// suite. No suitable Go library in the retrieval pack or the wider
// ecosystem implements IDEA, so idea-cbc (named in the crypto
// provider interface) is not in this table; see DESIGN.md.
type cipherMode struct {
	keySize int
	ivSize  int
	create  func(key, iv []byte, isRead bool) (interface{}, error)
}

var cipherModes = map[string]*cipherMode{
	cipher3DES: {24, des.BlockSize, newCBC(des.NewTripleDESCipher)},
	cipherAES128: {16, aes.BlockSize, newCBC(func(key []byte) (cipher.Block, error) {
		return aes.NewCipher(key)
	})},
	cipherBlowfish: {16, blowfish.BlockSize, newCBC(func(key []byte) (cipher.Block, error) {
		return blowfish.NewCipher(key)
	})},
	cipherCAST128: {16, cast5.BlockSize, newCBC(func(key []byte) (cipher.Block, error) {
		return cast5.NewCipher(key)
	})},
	cipherArcfour: {16, 0, newStreamCipher(func(key, _ []byte) (cipher.Stream, error) {
		return rc4.NewCipher(key)
	})},
}

// DefaultCipherOrder is the cipher preference order used when a
// CryptoConfig doesn't specify one.
var DefaultCipherOrder = []string{cipherAES128, cipherCAST128, cipherBlowfish, cipher3DES, cipherArcfour}

type cbcMode interface {
	cipher.BlockMode
	BlockSize() int
}

// newCBC adapts a block-cipher constructor into the create func
// cipherMode expects, producing a CBC BlockMode for either direction.
func newCBC(newBlock func(key []byte) (cipher.Block, error)) func(key, iv []byte, isRead bool) (interface{}, error) {
	return func(key, iv []byte, isRead bool) (interface{}, error) {
		block, err := newBlock(key)
		if err != nil {
			return nil, err
		}
		if isRead {
			return cipher.NewCBCDecrypter(block, iv), nil
		}
		return cipher.NewCBCEncrypter(block, iv), nil
	}
}

func newStreamCipher(newStream func(key, iv []byte) (cipher.Stream, error)) func(key, iv []byte, isRead bool) (interface{}, error) {
	return func(key, iv []byte, isRead bool) (interface{}, error) {
		return newStream(key, iv)
	}
}

