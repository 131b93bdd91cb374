// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/rand"
	"io"
	"math/big"
	"time"
)

// kexResult captures the outcome of a key exchange.
type kexResult struct {
	H         []byte // exchange hash, RFC 4253 section 8
	K         []byte // shared secret, as an mpint-encoded byte string
	HostKey   []byte // host key blob exactly as received, used as hash input
	Signature []byte
	Hash      crypto.Hash
}

// fixedGroup resolves a kex algorithm name to its precomputed DH
// group, per §9's "fixed DH groups" note.
func fixedGroup(kexAlgo string) (*dhGroup, bool) {
	switch kexAlgo {
	case kexAlgoDH1SHA1:
		dhGroup1Once.Do(initDHGroup1)
		return dhGroup1, true
	case kexAlgoDH14SHA1:
		dhGroup14Once.Do(initDHGroup14)
		return dhGroup14, true
	case kexAlgoDH15SHA1:
		dhGroup15Once.Do(initDHGroup15)
		return dhGroup15, true
	case kexAlgoDH16SHA1:
		dhGroup16Once.Do(initDHGroup16)
		return dhGroup16, true
	}
	return nil, false
}

// groupForSize picks the precomputed group whose prime size is the
// least ≥ n, accepting any group within ±16 bits of n per §4.3's
// "accepting any ±16-bit proximity in the precomputed table" note.
func groupForSize(n uint32) *dhGroup {
	dhGroup14Once.Do(initDHGroup14)
	dhGroup15Once.Do(initDHGroup15)
	dhGroup16Once.Do(initDHGroup16)
	candidates := []struct {
		bits  uint32
		group *dhGroup
	}{
		{2048, dhGroup14},
		{3072, dhGroup15},
		{4096, dhGroup16},
	}
	for _, c := range candidates {
		if c.bits+16 >= n {
			return c.group
		}
	}
	return dhGroup16
}

// clientKexDH performs static Diffie-Hellman key agreement (client role).
func clientKexDH(t *transport, rnd io.Reader, hashFunc crypto.Hash, group *dhGroup, magics *handshakeMagics, hostKeyAlgo string, q quirk) (*kexResult, error) {
	x, err := rand.Int(rnd, group.p)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(group.g, x, group.p)
	if err := t.writePacket(marshal(msgKexDHInit, kexDHInitMsg{X: X})); err != nil {
		return nil, err
	}

	packet, err := t.readPacket()
	if err != nil {
		return nil, err
	}
	var reply kexDHReplyMsg
	if err = unmarshal(&reply, packet, msgKexDHReply); err != nil {
		return nil, err
	}

	kInt, err := group.diffieHellman(reply.Y, x)
	if err != nil {
		return nil, err
	}

	h := hashFunc.New()
	writeString(h, magics.clientVersion)
	writeString(h, magics.serverVersion)
	writeString(h, magics.clientKexInit)
	writeString(h, magics.serverKexInit)
	writeString(h, reply.HostKey)
	writeInt(h, X)
	writeInt(h, reply.Y)
	K := make([]byte, intLength(kInt)+4)
	marshalMPI(K, kInt)
	if !q.has(quirkNoHashSecret) {
		h.Write(K[4:])
	}

	return &kexResult{H: h.Sum(nil), K: K[4:], HostKey: reply.HostKey, Signature: reply.Signature, Hash: hashFunc}, nil
}

// serverKexDH is the server side of static DH: it waits for the
// client's X, computes Y, signs H and replies.
func serverKexDH(t *transport, rnd io.Reader, hashFunc crypto.Hash, group *dhGroup, magics *handshakeMagics, hostKey PrivateKey, q quirk) (*kexResult, error) {
	packet, err := t.readPacket()
	if err != nil {
		return nil, err
	}
	var init kexDHInitMsg
	if err = unmarshal(&init, packet, msgKexDHInit); err != nil {
		return nil, err
	}

	y, err := rand.Int(rnd, group.p)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(group.g, y, group.p)

	kInt, err := group.diffieHellman(init.X, y)
	if err != nil {
		return nil, err
	}

	hostKeyBlob := MarshalPublicKey(hostKey)

	h := hashFunc.New()
	writeString(h, magics.clientVersion)
	writeString(h, magics.serverVersion)
	writeString(h, magics.clientKexInit)
	writeString(h, magics.serverKexInit)
	writeString(h, hostKeyBlob)
	writeInt(h, init.X)
	writeInt(h, Y)
	K := make([]byte, intLength(kInt)+4)
	marshalMPI(K, kInt)
	if !q.has(quirkNoHashSecret) {
		h.Write(K[4:])
	}
	H := h.Sum(nil)

	sig, err := hostKey.Sign(rnd, H)
	if err != nil {
		return nil, err
	}
	sigBlob := serializeSignature(hostKey.PrivateKeyAlgo(), sig)

	reply := kexDHReplyMsg{HostKey: hostKeyBlob, Y: Y, Signature: sigBlob}
	if err := t.writePacket(marshal(msgKexDHReply, reply)); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K[4:], HostKey: hostKeyBlob, Signature: sigBlob, Hash: hashFunc}, nil
}

// clientKexDHGEX performs the ephemeral group-exchange DH of §4.3:
// the client requests a prime size (or a {min,n,max} triple), the
// server picks a group and the rest proceeds like static DH with the
// group-size request and {p,g} mixed into the exchange hash.
func clientKexDHGEX(t *transport, rnd io.Reader, hashFunc crypto.Hash, cfg *CryptoConfig, magics *handshakeMagics, q quirk) (*kexResult, error) {
	min, n, max := cfg.gexRequest()

	var reqBytes []byte
	if q.has(quirkCuteFTP) {
		// Older peers only understand a bare N; see §4.3.
		reqBytes = appendU32(nil, n)
		if err := t.writePacket(append([]byte{msgKexDHGexRequestOld}, reqBytes...)); err != nil {
			return nil, err
		}
	} else {
		req := kexDHGexRequestMsg{Min: min, N: n, Max: max}
		reqBytes = marshal(msgKexDHGexRequest, req)[1:]
		if err := t.writePacket(marshal(msgKexDHGexRequest, req)); err != nil {
			return nil, err
		}
	}

	packet, err := t.readPacket()
	if err != nil {
		return nil, err
	}
	var group kexDHGexGroupMsg
	if err = unmarshal(&group, packet, msgKexDHGexGroup); err != nil {
		return nil, err
	}

	x, err := rand.Int(rnd, group.P)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(group.G, x, group.P)
	if err := t.writePacket(marshal(msgKexDHGexInit, kexDHGexInitMsg{X: X})); err != nil {
		return nil, err
	}

	packet, err = t.readPacket()
	if err != nil {
		return nil, err
	}
	var reply kexDHGexReplyMsg
	if err = unmarshal(&reply, packet, msgKexDHGexReply); err != nil {
		return nil, err
	}

	g := &dhGroup{g: group.G, p: group.P}
	kInt, err := g.diffieHellman(reply.Y, x)
	if err != nil {
		return nil, err
	}

	h := hashFunc.New()
	writeString(h, magics.clientVersion)
	writeString(h, magics.serverVersion)
	writeString(h, magics.clientKexInit)
	writeString(h, magics.serverKexInit)
	writeString(h, reply.HostKey)
	h.Write(reqBytes)
	writeInt(h, group.P)
	writeInt(h, group.G)
	writeInt(h, X)
	writeInt(h, reply.Y)
	K := make([]byte, intLength(kInt)+4)
	marshalMPI(K, kInt)
	if !q.has(quirkNoHashSecret) {
		h.Write(K[4:])
	}

	return &kexResult{H: h.Sum(nil), K: K[4:], HostKey: reply.HostKey, Signature: reply.Signature, Hash: hashFunc}, nil
}

// serverKexDHGEX is the server half of group-exchange: it reads the
// size request, picks a group, sends {p,g}, then proceeds like
// static DH.
func serverKexDHGEX(t *transport, rnd io.Reader, hashFunc crypto.Hash, magics *handshakeMagics, hostKey PrivateKey, q quirk) (*kexResult, error) {
	packet, err := t.readPacket()
	if err != nil {
		return nil, err
	}

	var reqBytes []byte
	var n uint32
	if packet[0] == msgKexDHGexRequestOld && len(packet) == 5 {
		n = bigEndianUint32(packet[1:5])
		reqBytes = packet[1:5]
	} else {
		var req kexDHGexRequestMsg
		if err = unmarshal(&req, packet, msgKexDHGexRequest); err != nil {
			return nil, err
		}
		n = req.N
		reqBytes = marshal(msgKexDHGexRequest, req)[1:]
	}

	group := groupForSize(n)
	if err := t.writePacket(marshal(msgKexDHGexGroup, kexDHGexGroupMsg{P: group.p, G: group.g})); err != nil {
		return nil, err
	}

	packet, err = t.readPacket()
	if err != nil {
		return nil, err
	}
	var init kexDHGexInitMsg
	if err = unmarshal(&init, packet, msgKexDHGexInit); err != nil {
		return nil, err
	}

	y, err := rand.Int(rnd, group.p)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(group.g, y, group.p)
	kInt, err := group.diffieHellman(init.X, y)
	if err != nil {
		return nil, err
	}

	hostKeyBlob := MarshalPublicKey(hostKey)

	h := hashFunc.New()
	writeString(h, magics.clientVersion)
	writeString(h, magics.serverVersion)
	writeString(h, magics.clientKexInit)
	writeString(h, magics.serverKexInit)
	writeString(h, hostKeyBlob)
	h.Write(reqBytes)
	writeInt(h, group.p)
	writeInt(h, group.g)
	writeInt(h, init.X)
	writeInt(h, Y)
	K := make([]byte, intLength(kInt)+4)
	marshalMPI(K, kInt)
	if !q.has(quirkNoHashSecret) {
		h.Write(K[4:])
	}
	H := h.Sum(nil)

	sig, err := hostKey.Sign(rnd, H)
	if err != nil {
		return nil, err
	}
	sigBlob := serializeSignature(hostKey.PrivateKeyAlgo(), sig)

	reply := kexDHGexReplyMsg{HostKey: hostKeyBlob, Y: Y, Signature: sigBlob}
	if err := t.writePacket(marshal(msgKexDHGexReply, reply)); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K[4:], HostKey: hostKeyBlob, Signature: sigBlob, Hash: hashFunc}, nil
}

func bigEndianUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// verifyHostKeySignature verifies the host key obtained in the key
// exchange, rewriting a quirkSigFormat peer's raw DSA signature to
// canonical form first.
func verifyHostKeySignature(hostKeyAlgo string, hostKeyBytes []byte, data []byte, signature []byte, q quirk) error {
	hostKey, ok := ParsePublicKey(hostKeyBytes)
	if !ok {
		return newError(BadData, "could not parse hostkey")
	}
	if cert, isCert := hostKey.(*OpenSSHCertV01); isCert {
		if err := cert.checkValidity(HostCert, "", time.Now()); err != nil {
			return err
		}
	}

	algo := pubAlgoToPrivAlgo(hostKeyAlgo)
	signature = canonicalizeSignature(algo, signature, q)

	sig, rest, ok := parseSignatureBody(signature)
	if len(rest) > 0 || !ok {
		return newError(BadData, "signature parse error")
	}
	if sig.Format != algo {
		return newError(BadData, "unexpected signature type "+safeString(sig.Format))
	}
	if !hostKey.Verify(data, sig.Blob) {
		return badSignature()
	}
	return nil
}

// --- key schedule, §3.3 ----------------------------------------------

// generateKeyMaterial derives one of the six cryptovariables of
// §3.3: the first block is H(K‖H‖label‖sessionID); if more bytes are
// needed, successive blocks are H(K‖H‖previous_blocks). K is hashed
// in the same raw (length-stripped mpint) form the exchange hash
// itself used it in. The six calls per rekey all start by hashing
// the same K‖H prefix (§9's precompute note); kept as a fresh hash
// per call here since none of this package's hash choices (SHA-1,
// MD5) expose a cheap mid-state clone through the stdlib hash.Hash
// interface without reaching for package-internal APIs.
func generateKeyMaterial(K, H []byte, label byte, sessionID []byte, hashFunc crypto.Hash, size int) []byte {
	if size == 0 {
		return nil
	}
	h := hashFunc.New()
	h.Write(K)
	h.Write(H)
	h.Write([]byte{label})
	h.Write(sessionID)
	out := h.Sum(nil)

	for len(out) < size {
		h := hashFunc.New()
		h.Write(K)
		h.Write(H)
		h.Write(out)
		out = append(out, h.Sum(nil)...)
	}
	return out[:size]
}
