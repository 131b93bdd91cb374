// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"testing"
	"time"
)

func TestOpenSSHCertV01MarshalParseRoundTrip(t *testing.T) {
	caKey := generateTestRSAKey(t)
	userKey := generateTestRSAKey(t)

	cert := &OpenSSHCertV01{
		Nonce:           []byte("nonce"),
		Key:             &rsaPublicKey{E: userKey.E, N: userKey.N},
		Serial:          42,
		Type:            UserCert,
		KeyId:           "alice",
		ValidPrincipals: []string{"alice", "root"},
		ValidAfter:      time.Unix(1000, 0),
		ValidBefore:     time.Unix(2000, 0),
		CriticalOptions: []tuple{{Name: "force-command", Data: "/bin/true"}},
		Extensions:      []tuple{{Name: "permit-pty", Data: ""}},
		Reserved:        nil,
		SignatureKey:    &rsaPublicKey{E: caKey.E, N: caKey.N},
		Signature:       &signature{Format: KeyAlgoRSA, Blob: []byte("signature bytes")},
	}

	blob := cert.Marshal()
	parsed, rest, ok := parseOpenSSHCertV01(blob, KeyAlgoRSA)
	if !ok {
		t.Fatal("parseOpenSSHCertV01 failed to parse Marshal's own output")
	}
	if len(rest) != 0 {
		t.Errorf("unexpected trailing bytes: %d", len(rest))
	}
	if parsed.Serial != cert.Serial {
		t.Errorf("Serial = %d, want %d", parsed.Serial, cert.Serial)
	}
	if parsed.KeyId != cert.KeyId {
		t.Errorf("KeyId = %q, want %q", parsed.KeyId, cert.KeyId)
	}
	if len(parsed.ValidPrincipals) != 2 || parsed.ValidPrincipals[0] != "alice" {
		t.Errorf("ValidPrincipals = %v, want [alice root]", parsed.ValidPrincipals)
	}
	if !parsed.ValidAfter.Equal(cert.ValidAfter) || !parsed.ValidBefore.Equal(cert.ValidBefore) {
		t.Errorf("validity window = [%v, %v], want [%v, %v]", parsed.ValidAfter, parsed.ValidBefore, cert.ValidAfter, cert.ValidBefore)
	}
	if parsed.PublicKeyAlgo() != CertAlgoRSAv01 {
		t.Errorf("PublicKeyAlgo() = %q, want %q", parsed.PublicKeyAlgo(), CertAlgoRSAv01)
	}
}

func TestOpenSSHCertV01CheckValidity(t *testing.T) {
	base := &OpenSSHCertV01{
		Type:            UserCert,
		ValidPrincipals: []string{"alice", "root"},
		ValidAfter:      time.Unix(1000, 0),
		ValidBefore:     time.Unix(2000, 0),
	}

	if err := base.checkValidity(UserCert, "alice", time.Unix(1500, 0)); err != nil {
		t.Errorf("expected a valid certificate to pass, got %v", err)
	}
	if err := base.checkValidity(HostCert, "alice", time.Unix(1500, 0)); err == nil {
		t.Error("expected certificate type mismatch to be rejected")
	}
	if err := base.checkValidity(UserCert, "mallory", time.Unix(1500, 0)); err == nil {
		t.Error("expected a principal outside ValidPrincipals to be rejected")
	}
	if err := base.checkValidity(UserCert, "alice", time.Unix(500, 0)); err == nil {
		t.Error("expected a certificate presented before ValidAfter to be rejected")
	}
	if err := base.checkValidity(UserCert, "alice", time.Unix(2500, 0)); err == nil {
		t.Error("expected a certificate presented after ValidBefore to be rejected")
	}

	forever := &OpenSSHCertV01{
		Type:        HostCert,
		ValidAfter:  time.Unix(1000, 0),
		ValidBefore: certForever,
	}
	if err := forever.checkValidity(HostCert, "", time.Unix(1<<32, 0)); err != nil {
		t.Errorf("expected a never-expiring certificate to stay valid, got %v", err)
	}
}
