// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"fmt"
)

// maxAuthRounds bounds the keyboard-interactive exchange, mirroring
// the "misnamed PAM" dialog the original client coped with, which
// could otherwise loop the client indefinitely against a hostile or
// misconfigured server.
const maxAuthRounds = 5

// ClientAuth is one entry in a ClientConfig.Auth list; the client
// walks the list in order, trying each method until one succeeds or
// the list is exhausted (RFC 4252 §5's partial-success chaining).
type ClientAuth interface {
	// auth sends one authentication attempt and returns the set of
	// methods the server still allows, whether this attempt
	// succeeded outright, and any protocol error.
	auth(session []byte, user string, t *transport, rand interface{ Read([]byte) (int, error) }) (ok bool, methods []string, err error)

	// method names the wire method string, e.g. "password".
	method() string
}

// ClientAuthNone is the empty probe of RFC 4252 §5.2: it exists to
// learn which methods the server will accept before committing to
// one, and the teacher's code used exactly this to seed chooseAuth.
type ClientAuthNone struct{}

func (ClientAuthNone) method() string { return "none" }

func (ClientAuthNone) auth(session []byte, user string, t *transport, rnd interface{ Read([]byte) (int, error) }) (bool, []string, error) {
	if err := t.writePacket(marshal(msgUserAuthRequest, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "none",
	})); err != nil {
		return false, nil, err
	}
	return parseAuthResult(t)
}

// ClientAuthPassword implements RFC 4252 §8. The password packet is
// marked for 256-byte padding (§4.1/§9) before it is sent, so its
// length doesn't leak through the wire packet size.
type ClientAuthPassword struct {
	Password string
}

func (ClientAuthPassword) method() string { return "password" }

func (p ClientAuthPassword) auth(session []byte, user string, t *transport, rnd interface{ Read([]byte) (int, error) }) (bool, []string, error) {
	var payload []byte
	payload = appendBool(payload, false) // not a change-password request
	payload = appendString(payload, p.Password)

	t.writer.mu.Lock()
	t.writer.padPassword = true
	t.writer.mu.Unlock()

	if err := t.writePacket(marshal(msgUserAuthRequest, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "password",
		Rest:    payload,
	})); err != nil {
		return false, nil, err
	}
	return parseAuthResult(t)
}

// ClientAuthPublicKey implements RFC 4252 §7: a first unsigned probe
// packet asks whether the server would accept this key, then (if so)
// a second packet carries the signature over buildDataSignedForAuth.
type ClientAuthPublicKey struct {
	Key PrivateKey
}

func (ClientAuthPublicKey) method() string { return "publickey" }

func (p ClientAuthPublicKey) auth(session []byte, user string, t *transport, rnd interface{ Read([]byte) (int, error) }) (bool, []string, error) {
	algo := p.Key.PrivateKeyAlgo()
	pubKey := MarshalPublicKey(p.Key)

	probe := buildPublicKeyProbe(user, algo, pubKey)
	if err := t.writePacket(probe); err != nil {
		return false, nil, err
	}
	packet, err := t.readPacket()
	if err != nil {
		return false, nil, err
	}
	if packet[0] != msgUserAuthPubKeyOk {
		return rewindAuthResult(t, packet)
	}

	data := buildDataSignedForAuth(session, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "publickey",
	}, []byte(algo), pubKey, quirkNone)

	sig, err := p.Key.Sign(rnd, data)
	if err != nil {
		return false, nil, wrapError(BadSignature, "signing auth data failed", err)
	}
	sigBlob := serializeSignature(algo, sig)

	var payload []byte
	payload = appendBool(payload, true)
	payload = appendString(payload, algo)
	payload = appendU32(payload, uint32(len(pubKey)))
	payload = append(payload, pubKey...)
	payload = appendU32(payload, uint32(len(sigBlob)))
	payload = append(payload, sigBlob...)

	if err := t.writePacket(marshal(msgUserAuthRequest, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "publickey",
		Rest:    payload,
	})); err != nil {
		return false, nil, err
	}
	return parseAuthResult(t)
}

func buildPublicKeyProbe(user, algo string, pubKey []byte) []byte {
	var payload []byte
	payload = appendBool(payload, false)
	payload = appendString(payload, algo)
	payload = appendU32(payload, uint32(len(pubKey)))
	payload = append(payload, pubKey...)
	return marshal(msgUserAuthRequest, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "publickey",
		Rest:    payload,
	})
}

// ClientKeyboardInteractive answers the keyboard-interactive info
// request/response dance of RFC 4256. Most servers that speak this
// method are really PAM asking a single "Password:" question, which
// quirkPAMPW and the "Password"-prefix check in looksLikePassword detect.
type ClientKeyboardInteractive interface {
	// Challenge is called once per INFO_REQUEST with the prompts the
	// server sent; it returns one answer per prompt.
	Challenge(name, instruction string, questions []string, echos []bool) ([]string, error)
}

type ClientAuthInteractive struct {
	Challenger ClientKeyboardInteractive
}

func (ClientAuthInteractive) method() string { return "keyboard-interactive" }

func (p ClientAuthInteractive) auth(session []byte, user string, t *transport, rnd interface{ Read([]byte) (int, error) }) (bool, []string, error) {
	if err := t.writePacket(marshal(msgUserAuthRequest, userAuthRequestMsg{
		User:    user,
		Service: serviceSSH,
		Method:  "keyboard-interactive",
		Rest:    appendString(appendString(nil, ""), ""),
	})); err != nil {
		return false, nil, err
	}

	for round := 0; ; round++ {
		packet, err := t.readPacket()
		if err != nil {
			return false, nil, err
		}
		switch packet[0] {
		case msgUserAuthInfoRequest:
			if round == maxAuthRounds {
				return false, nil, newError(BadData, "too many keyboard-interactive rounds")
			}
			var req userAuthInfoRequestMsg
			if err := unmarshalBody(&req, packet[1:]); err != nil {
				return false, nil, err
			}
			prompts, echos, err := parsePrompts(req)
			if err != nil {
				return false, nil, err
			}
			if len(prompts) > 0 {
				hasPassword := false
				for _, prompt := range prompts {
					if looksLikePassword(prompt) {
						hasPassword = true
						break
					}
				}
				if !hasPassword {
					return false, nil, newError(NotInited, "keyboard-interactive request did not ask for a password, unsupported")
				}
			}
			if t.quirks.has(quirkPAMPW) {
				for i, prompt := range prompts {
					if looksLikePassword(prompt) {
						echos[i] = false
					}
				}
			}
			answers, err := p.Challenger.Challenge(req.Name, req.Instruction, prompts, echos)
			if err != nil {
				return false, nil, err
			}
			var resp []byte
			resp = appendU32(resp, uint32(len(answers)))
			for _, a := range answers {
				resp = appendString(resp, a)
			}
			if err := t.writePacket(marshal(msgUserAuthInfoResponse, userAuthInfoResponseMsg{
				NumResponses: uint32(len(answers)),
				Responses:    resp[4:],
			})); err != nil {
				return false, nil, err
			}
		default:
			return rewindAuthResult(t, packet)
		}
	}
}

func parsePrompts(req userAuthInfoRequestMsg) ([]string, []bool, error) {
	rest := req.Prompts
	prompts := make([]string, 0, req.NumPrompts)
	echos := make([]bool, 0, req.NumPrompts)
	for i := uint32(0); i < req.NumPrompts; i++ {
		s, tail, ok := parseString(rest)
		if !ok {
			return nil, nil, newError(BadData, "truncated prompt list")
		}
		rest = tail
		if len(rest) < 1 {
			return nil, nil, newError(BadData, "truncated prompt list")
		}
		prompts = append(prompts, string(s))
		echos = append(echos, rest[0] != 0)
		rest = rest[1:]
	}
	return prompts, echos, nil
}

// rewindAuthResult interprets a packet already read off the wire as
// the terminal reply to an auth attempt (used when a method's
// probe/handshake step ends early, e.g. PUBKEY_OK never arrives).
func rewindAuthResult(t *transport, packet []byte) (bool, []string, error) {
	switch packet[0] {
	case msgUserAuthSuccess:
		return true, nil, nil
	case msgUserAuthFailure:
		var msg userAuthFailureMsg
		if err := unmarshalBody(&msg, packet[1:]); err != nil {
			return false, nil, err
		}
		return false, msg.Methods, nil
	case msgUserAuthBanner:
		return rewindAuthResultNext(t)
	case msgDisconnect:
		return false, nil, newError(Permission, "server disconnected during authentication")
	}
	return false, nil, newError(BadData, fmt.Sprintf("unexpected message %d during authentication", packet[0]))
}

func rewindAuthResultNext(t *transport) (bool, []string, error) {
	packet, err := t.readPacket()
	if err != nil {
		return false, nil, err
	}
	return rewindAuthResult(t, packet)
}

// parseAuthResult reads the next packet and classifies it as
// success, failure-with-methods, or a banner to skip past (RFC 4252
// §5.4).
func parseAuthResult(t *transport) (bool, []string, error) {
	packet, err := t.readPacket()
	if err != nil {
		return false, nil, err
	}
	return rewindAuthResult(t, packet)
}
