// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestTryPasswordAcceptsAndRejects(t *testing.T) {
	db := testUserDB{user: "alice", password: "hunter2"}

	req := userAuthRequestMsg{User: "alice", Rest: append([]byte{0}, appendString(nil, "hunter2")...)}
	ok, err := tryPassword(db, req)
	if err != nil {
		t.Fatalf("tryPassword: %v", err)
	}
	if !ok {
		t.Error("expected the correct password to be accepted")
	}

	req.Rest = append([]byte{0}, appendString(nil, "wrong")...)
	ok, err = tryPassword(db, req)
	if err != nil {
		t.Fatalf("tryPassword: %v", err)
	}
	if ok {
		t.Error("expected an incorrect password to be rejected")
	}
}

func TestTryPasswordRejectsTruncatedRequest(t *testing.T) {
	db := testUserDB{user: "alice", password: "hunter2"}
	if _, err := tryPassword(db, userAuthRequestMsg{User: "alice", Rest: nil}); err == nil {
		t.Error("expected an error for a request with no payload")
	}
}

func TestTryPasswordNilDBRejects(t *testing.T) {
	req := userAuthRequestMsg{User: "alice", Rest: append([]byte{0}, appendString(nil, "hunter2")...)}
	ok, err := tryPassword(nil, req)
	if err != nil {
		t.Fatalf("tryPassword: %v", err)
	}
	if ok {
		t.Error("a nil UserDB should never accept a password")
	}
}

func TestTryPublicKeyProbeRejectsUnauthorizedKey(t *testing.T) {
	key := generateTestRSAKey(t)
	pub := &rsaPublicKey{E: key.E, N: key.N}
	blob := MarshalPublicKey(pub)

	db := testUserDB{user: "alice", password: "hunter2"} // PublicKey always false

	rest := []byte{0} // no signature: probe only
	rest = appendString(rest, KeyAlgoRSA)
	rest = appendU32(rest, uint32(len(blob)))
	rest = append(rest, blob...)

	ok, err := tryPublicKey(nil, nil, db, userAuthRequestMsg{User: "alice", Rest: rest}, quirkNone)
	if err != nil {
		t.Fatalf("tryPublicKey: %v", err)
	}
	if ok {
		t.Error("expected an unauthorized key to be rejected")
	}
}
