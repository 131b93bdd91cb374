// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/dsa"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"math/big"
)

// These are string constants in the SSH protocol.
const (
	KeyAlgoRSA      = "ssh-rsa"
	KeyAlgoDSA      = "ssh-dss"
	KeyAlgoECDSA256 = "ecdsa-sha2-nistp256"
	KeyAlgoECDSA384 = "ecdsa-sha2-nistp384"
	KeyAlgoECDSA521 = "ecdsa-sha2-nistp521"
)

// PublicKey represents a public key using an unspecified algorithm.
type PublicKey interface {
	// PublicKeyAlgo returns the algorithm for the public key,
	// which may differ from the key format (e.g. certificates).
	PublicKeyAlgo() string
	// PrivateKeyAlgo returns the key format algorithm name, used
	// both to select the signature hash and in Marshal's output.
	PrivateKeyAlgo() string
	// Marshal returns the serialized key blob, as transmitted over
	// the wire (the portion that follows the algorithm name string
	// in the ssh-encoded key format).
	Marshal() []byte
	// Verify verifies a signature made with Sign.
	Verify(data []byte, sig []byte) bool
}

// PrivateKey represents a key usable for signing SSH handshake data.
type PrivateKey interface {
	PublicKey
	Sign(rand interface{ Read([]byte) (int, error) }, data []byte) ([]byte, error)
}

type rsaPublicKey rsa.PublicKey

func (r *rsaPublicKey) PublicKeyAlgo() string  { return KeyAlgoRSA }
func (r *rsaPublicKey) PrivateKeyAlgo() string { return KeyAlgoRSA }

func (r *rsaPublicKey) Marshal() []byte {
	e := new(big.Int).SetInt64(int64(r.E))
	length := intLength(e) + 4
	length += intLength(r.N) + 4
	ret := make([]byte, length)
	rest := marshalMPI(ret, e)
	marshalMPI(rest, r.N)
	return ret
}

func (r *rsaPublicKey) Verify(data []byte, sigBlob []byte) bool {
	h := sha1.New()
	h.Write(data)
	digest := h.Sum(nil)
	return rsa.VerifyPKCS1v15((*rsa.PublicKey)(r), crypto.SHA1, digest, sigBlob) == nil
}

type rsaPrivateKey struct {
	*rsa.PrivateKey
}

func (r *rsaPrivateKey) PublicKeyAlgo() string  { return KeyAlgoRSA }
func (r *rsaPrivateKey) PrivateKeyAlgo() string { return KeyAlgoRSA }
func (r *rsaPrivateKey) Marshal() []byte        { return (*rsaPublicKey)(&r.PublicKey).Marshal() }
func (r *rsaPrivateKey) Verify(data, sig []byte) bool {
	return (*rsaPublicKey)(&r.PublicKey).Verify(data, sig)
}

func (r *rsaPrivateKey) Sign(rnd interface{ Read([]byte) (int, error) }, data []byte) ([]byte, error) {
	h := sha1.New()
	h.Write(data)
	digest := h.Sum(nil)
	return rsa.SignPKCS1v15(rand.Reader, r.PrivateKey, crypto.SHA1, digest)
}

type dsaPublicKey dsa.PublicKey

func (d *dsaPublicKey) PublicKeyAlgo() string  { return KeyAlgoDSA }
func (d *dsaPublicKey) PrivateKeyAlgo() string { return KeyAlgoDSA }

func (d *dsaPublicKey) Marshal() []byte {
	length := intLength(d.P) + 4
	length += intLength(d.Q) + 4
	length += intLength(d.G) + 4
	length += intLength(d.Y) + 4
	ret := make([]byte, length)
	rest := marshalMPI(ret, d.P)
	rest = marshalMPI(rest, d.Q)
	rest = marshalMPI(rest, d.G)
	marshalMPI(rest, d.Y)
	return ret
}

// Verify takes the 40-byte r||s wire encoding of a DSA signature,
// RFC 4253 6.6. quirkSigFormat peers send this raw, without the
// "ssh-dss" || signature outer wrapper; canonicalizeSignature rewrites
// that shape back to the standard one before this is called.
func (d *dsaPublicKey) Verify(data []byte, sigBlob []byte) bool {
	if len(sigBlob) != 40 {
		return false
	}
	r := new(big.Int).SetBytes(sigBlob[:20])
	s := new(big.Int).SetBytes(sigBlob[20:])
	h := sha1.New()
	h.Write(data)
	digest := h.Sum(nil)
	return dsa.Verify((*dsa.PublicKey)(d), digest, r, s)
}

type dsaPrivateKey struct {
	*dsa.PrivateKey
}

func (d *dsaPrivateKey) PublicKeyAlgo() string  { return KeyAlgoDSA }
func (d *dsaPrivateKey) PrivateKeyAlgo() string { return KeyAlgoDSA }
func (d *dsaPrivateKey) Marshal() []byte        { return (*dsaPublicKey)(&d.PublicKey).Marshal() }
func (d *dsaPrivateKey) Verify(data, sig []byte) bool {
	return (*dsaPublicKey)(&d.PublicKey).Verify(data, sig)
}

func (d *dsaPrivateKey) Sign(rnd interface{ Read([]byte) (int, error) }, data []byte) ([]byte, error) {
	h := sha1.New()
	h.Write(data)
	digest := h.Sum(nil)
	r, s, err := dsa.Sign(rand.Reader, d.PrivateKey, digest)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 40)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(sig[20-len(rb):20], rb)
	copy(sig[40-len(sb):40], sb)
	return sig, nil
}

// ParsePublicKey parses an SSH-encoded public key (algorithm name
// string followed by the algorithm-specific blob).
func ParsePublicKey(in []byte) (out PublicKey, ok bool) {
	out, _, ok = parsePubKey(in)
	return out, ok
}

// parsePubKey is identical to ParsePublicKey but additionally
// returns the unconsumed tail, used when parsing a certificate's
// embedded keys (certs.go).
func parsePubKey(in []byte) (out PublicKey, rest []byte, ok bool) {
	algo, rest, ok := parseString(in)
	if !ok {
		return nil, in, false
	}
	switch string(algo) {
	case KeyAlgoRSA:
		return parseRSA(rest)
	case KeyAlgoDSA:
		return parseDSA(rest)
	case CertAlgoRSAv01:
		cert, rest, ok := parseOpenSSHCertV01(rest, KeyAlgoRSA)
		return cert, rest, ok
	case CertAlgoDSAv01:
		cert, rest, ok := parseOpenSSHCertV01(rest, KeyAlgoDSA)
		return cert, rest, ok
	}
	return nil, in, false
}

func parseRSA(in []byte) (PublicKey, []byte, bool) {
	e, rest, ok := parseMPI(in)
	if !ok {
		return nil, in, false
	}
	n, rest, ok := parseMPI(rest)
	if !ok {
		return nil, in, false
	}
	return &rsaPublicKey{E: int(e.Int64()), N: n}, rest, true
}

func parseDSA(in []byte) (PublicKey, []byte, bool) {
	p, rest, ok := parseMPI(in)
	if !ok {
		return nil, in, false
	}
	q, rest, ok := parseMPI(rest)
	if !ok {
		return nil, in, false
	}
	g, rest, ok := parseMPI(rest)
	if !ok {
		return nil, in, false
	}
	y, rest, ok := parseMPI(rest)
	if !ok {
		return nil, in, false
	}
	return &dsaPublicKey{Parameters: dsa.Parameters{P: p, Q: q, G: g}, Y: y}, rest, true
}

// canonicalizeSignature rewrites a quirkSigFormat peer's raw 40-byte
// DSA signature into the standard "ssh-dss"||blob wrapper so the
// normal parseSignatureBody path can handle it uniformly.
func canonicalizeSignature(algo string, sig []byte, q quirk) []byte {
	if algo != KeyAlgoDSA || !q.has(quirkSigFormat) || len(sig) != 40 {
		return sig
	}
	return serializeSignature(algo, sig)
}

// ParsePrivateKey loads a host key from a PEM-encoded PKCS#1 RSA or
// PKCS#8 block, the two shapes `ssh-keygen`/`openssl genpkey` produce.
func ParsePrivateKey(pemBytes []byte) (PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("ssh: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &rsaPrivateKey{key}, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, newError(BadData, "unsupported private key format")
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &rsaPrivateKey{k}, nil
	case *dsa.PrivateKey:
		return &dsaPrivateKey{k}, nil
	default:
		return nil, newError(BadData, "unsupported private key type")
	}
}

// errNotImplemented marks key algorithms named in supportedHostKeyAlgos
// that have no concrete implementation yet.
var errNotImplemented = errors.New("ssh: not implemented")

// Fingerprint hashes the raw host-key blob as received on the wire.
// MD5 is the teacher's/source's default (§4.3); a 20-byte caller
// fingerprint selects SHA-1 instead.
func Fingerprint(hostKeyBlob []byte, caller []byte) ([]byte, bool) {
	if len(caller) == 20 {
		h := sha1.Sum(hostKeyBlob)
		return h[:], bytesEqual(h[:], caller)
	}
	h := md5.Sum(hostKeyBlob)
	if caller == nil {
		return h[:], true
	}
	return h[:], bytesEqual(h[:], caller)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
