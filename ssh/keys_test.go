// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func generateTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func TestParsePrivateKeyPKCS1(t *testing.T) {
	key := generateTestRSAKey(t)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	pemBytes := pem.EncodeToMemory(block)

	parsed, err := ParsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if parsed.PrivateKeyAlgo() != KeyAlgoRSA {
		t.Errorf("PrivateKeyAlgo() = %q, want %q", parsed.PrivateKeyAlgo(), KeyAlgoRSA)
	}
}

func TestParsePrivateKeyPKCS8(t *testing.T) {
	key := generateTestRSAKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := ParsePrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if parsed.PrivateKeyAlgo() != KeyAlgoRSA {
		t.Errorf("PrivateKeyAlgo() = %q, want %q", parsed.PrivateKeyAlgo(), KeyAlgoRSA)
	}
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	if _, err := ParsePrivateKey([]byte("not a pem block")); err == nil {
		t.Fatal("expected an error for non-PEM input")
	}
}

func TestPublicKeyMarshalRoundTrip(t *testing.T) {
	key := generateTestRSAKey(t)
	priv := &rsaPrivateKey{key}

	blob := MarshalPublicKey(priv)
	parsed, ok := ParsePublicKey(blob)
	if !ok {
		t.Fatal("ParsePublicKey failed to parse MarshalPublicKey's own output")
	}
	if parsed.PrivateKeyAlgo() != KeyAlgoRSA {
		t.Errorf("PrivateKeyAlgo() = %q, want %q", parsed.PrivateKeyAlgo(), KeyAlgoRSA)
	}

	data := []byte("session data to sign")
	sig, err := priv.Sign(rand.Reader, data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !parsed.Verify(data, sig) {
		t.Error("Verify rejected a signature produced by the matching private key")
	}
	if parsed.Verify([]byte("tampered data"), sig) {
		t.Error("Verify accepted a signature over the wrong data")
	}
}

func TestFingerprintMatchesCaller(t *testing.T) {
	blob := []byte("pretend host key blob")
	sum, ok := Fingerprint(blob, nil)
	if !ok {
		t.Fatal("Fingerprint with nil caller should always report ok=true")
	}
	if _, ok := Fingerprint(blob, sum); !ok {
		t.Error("Fingerprint should accept its own previously computed digest")
	}
	wrong := make([]byte, 16)
	if _, ok := Fingerprint(blob, wrong); ok {
		t.Error("Fingerprint should reject a mismatched caller digest")
	}
}
