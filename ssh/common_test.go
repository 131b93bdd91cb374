// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func fullKexInit(kex, hostKey, cipher, mac, compression []string) *kexInitMsg {
	return &kexInitMsg{
		KexAlgos:                kex,
		ServerHostKeyAlgos:      hostKey,
		CiphersClientServer:     cipher,
		CiphersServerClient:     cipher,
		MACsClientServer:        mac,
		MACsServerClient:        mac,
		CompressionClientServer: compression,
		CompressionServerClient: compression,
	}
}

func TestNegotiateAsServerPrefersPeerOrder(t *testing.T) {
	server := fullKexInit(
		[]string{kexAlgoDH14SHA1, kexAlgoDHGEXSHA1},
		[]string{hostAlgoRSA},
		[]string{"aes128-ctr", "3des-cbc"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)
	client := fullKexInit(
		[]string{kexAlgoDHGEXSHA1, kexAlgoDH14SHA1},
		[]string{hostAlgoRSA},
		[]string{"3des-cbc", "aes128-ctr"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)

	n, err := negotiateAsServer(server, client)
	if err != nil {
		t.Fatalf("negotiateAsServer: %v", err)
	}
	if n.kexAlgo != kexAlgoDHGEXSHA1 {
		t.Errorf("kexAlgo = %q, want %q (client's top preference)", n.kexAlgo, kexAlgoDHGEXSHA1)
	}
	if n.cipherCtoS != "3des-cbc" {
		t.Errorf("cipherCtoS = %q, want %q", n.cipherCtoS, "3des-cbc")
	}
}

func TestNegotiateAsClientPrefersOwnOrder(t *testing.T) {
	client := fullKexInit(
		[]string{kexAlgoDH14SHA1, kexAlgoDHGEXSHA1},
		[]string{hostAlgoRSA},
		[]string{"aes128-ctr", "3des-cbc"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)
	server := fullKexInit(
		[]string{kexAlgoDHGEXSHA1, kexAlgoDH14SHA1},
		[]string{hostAlgoRSA},
		[]string{"3des-cbc", "aes128-ctr"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)

	n, err := negotiateAsClient(client, server)
	if err != nil {
		t.Fatalf("negotiateAsClient: %v", err)
	}
	if n.kexAlgo != kexAlgoDH14SHA1 {
		t.Errorf("kexAlgo = %q, want %q (our own top preference)", n.kexAlgo, kexAlgoDH14SHA1)
	}
	if n.cipherCtoS != "aes128-cbc" {
		t.Errorf("cipherCtoS = %q, want %q", n.cipherCtoS, "aes128-cbc")
	}
}

func TestNegotiateNoCommonKex(t *testing.T) {
	a := fullKexInit([]string{kexAlgoDH14SHA1}, []string{hostAlgoRSA}, []string{"aes128-ctr"}, []string{"hmac-sha1"}, []string{compressionNone})
	b := fullKexInit([]string{kexAlgoDH16SHA1}, []string{hostAlgoRSA}, []string{"aes128-ctr"}, []string{"hmac-sha1"}, []string{compressionNone})

	if _, err := negotiateAsServer(a, b); err == nil {
		t.Fatal("expected error for disjoint kex algorithm lists")
	}
}

func TestNegotiateRejectsAsymmetricCipher(t *testing.T) {
	local := &kexInitMsg{
		KexAlgos:                []string{kexAlgoDH14SHA1},
		ServerHostKeyAlgos:      []string{hostAlgoRSA},
		CiphersClientServer:     []string{"aes128-ctr"},
		CiphersServerClient:     []string{"3des-cbc"},
		MACsClientServer:        []string{"hmac-sha1"},
		MACsServerClient:        []string{"hmac-sha1"},
		CompressionClientServer: []string{compressionNone},
		CompressionServerClient: []string{compressionNone},
	}
	peer := &kexInitMsg{
		KexAlgos:                []string{kexAlgoDH14SHA1},
		ServerHostKeyAlgos:      []string{hostAlgoRSA},
		CiphersClientServer:     []string{"aes128-cbc", "3des-cbc"},
		CiphersServerClient:     []string{"aes128-cbc", "3des-cbc"},
		MACsClientServer:        []string{"hmac-sha1"},
		MACsServerClient:        []string{"hmac-sha1"},
		CompressionClientServer: []string{compressionNone},
		CompressionServerClient: []string{compressionNone},
	}

	if _, err := negotiateAsServer(local, peer); err == nil {
		t.Fatal("expected asymmetric cipher choice to be rejected")
	}
}

func TestDiscardGuessWhenPeerGuessedWrong(t *testing.T) {
	server := fullKexInit(
		[]string{kexAlgoDH14SHA1},
		[]string{hostAlgoRSA},
		[]string{"aes128-cbc"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)
	client := fullKexInit(
		[]string{kexAlgoDHGEXSHA1, kexAlgoDH14SHA1},
		[]string{hostAlgoRSA},
		[]string{"aes128-cbc"},
		[]string{"hmac-sha1"},
		[]string{compressionNone},
	)
	client.FirstKexFollows = true

	n, err := negotiateAsServer(server, client)
	if err != nil {
		t.Fatalf("negotiateAsServer: %v", err)
	}
	if !n.discardGuess {
		t.Error("expected discardGuess=true: client guessed diffie-hellman-group-exchange-sha1 but group14 was chosen")
	}
}

func TestWindowReserveBlocksUntilAdd(t *testing.T) {
	w := &window{Cond: newCond()}
	done := make(chan uint32, 1)
	go func() {
		done <- w.reserve(100)
	}()

	select {
	case <-done:
		t.Fatal("reserve returned before any window was added")
	default:
	}

	if !w.add(50) {
		t.Fatal("add(50) overflowed unexpectedly")
	}

	if got := <-done; got != 50 {
		t.Errorf("reserve() = %d, want 50 (window was smaller than requested)", got)
	}
}

func TestWindowAddOverflow(t *testing.T) {
	w := &window{Cond: newCond(), win: ^uint32(0) - 1}
	if w.add(10) {
		t.Fatal("add should report overflow when win+n wraps past uint32 max")
	}
}
