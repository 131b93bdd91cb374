// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"strings"
	"time"
)

// maxAuthAttempts bounds the number of USERAUTH_REQUEST packets the
// server Auth Engine will process before giving up and disconnecting,
// grounded on ssh2_svr.c's bounded auth loop.
const maxAuthAttempts = 20

// UserDB is the server-side callback surface for credential checks.
// All three methods are always advertised in the failure method list
// (see authMethods), whatever the UserDB answers.
type UserDB interface {
	// Password validates a password login; ok=false rejects it.
	Password(user, password string) (ok bool, err error)

	// PublicKey validates that user is permitted to authenticate with
	// this key; the signature itself is checked by the Auth Engine,
	// this callback only decides whether the key is authorized.
	PublicKey(user string, key PublicKey) (ok bool, err error)

	// KeyboardInteractive drives a keyboard-interactive round; it
	// returns the prompts to send or, when no further round is
	// needed, ok=true to accept the login.
	KeyboardInteractive(user string, answers []string) (ok bool, prompts []string, echos []bool, instruction string, err error)
}

// authMethods lists the methods advertised in USERAUTH_FAILURE,
// the same fixed list for every UserDB, so every rejection uses the
// same list (ssh2_svr.c's fixed methodName tables).
func authMethods(db UserDB) []string {
	return []string{"publickey", "password", "keyboard-interactive"}
}

// serveAuth runs the server side of RFC 4252 over an already
// version-exchanged, keyed transport: it waits for ssh-userauth
// service request then processes USERAUTH_REQUEST packets until one
// succeeds, returning the authenticated user name.
func serveAuth(t *transport, sessionID []byte, db UserDB, q quirk) (user string, err error) {
	packet, err := t.readPacket()
	if err != nil {
		return "", err
	}
	var svcReq serviceRequestMsg
	if err := unmarshal(&svcReq, packet, msgServiceRequest); err != nil {
		return "", err
	}
	if svcReq.Service != serviceUserAuth {
		return "", newError(BadData, "expected ssh-userauth service request")
	}
	if err := t.writePacket(marshal(msgServiceAccept, serviceAcceptMsg{Service: serviceUserAuth})); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		packet, err := t.readPacket()
		if err != nil {
			return "", err
		}
		var req userAuthRequestMsg
		if err := unmarshal(&req, packet, msgUserAuthRequest); err != nil {
			return "", err
		}
		if req.Service != serviceSSH {
			return "", newError(BadData, "unexpected service in auth request")
		}

		ok, err := tryAuthMethod(t, sessionID, db, req, q)
		if err != nil {
			return "", err
		}
		if ok {
			authAttemptsTotal.WithLabelValues(req.Method, "ok").Inc()
			if err := t.writePacket(marshal(msgUserAuthSuccess, userAuthSuccessMsg{})); err != nil {
				return "", err
			}
			return req.User, nil
		}
		authAttemptsTotal.WithLabelValues(req.Method, "fail").Inc()

		if err := t.writePacket(marshal(msgUserAuthFailure, userAuthFailureMsg{
			Methods:        authMethods(db),
			PartialSuccess: false,
		})); err != nil {
			return "", err
		}
	}
	return "", newError(Overflow, "too many authentication attempts")
}

// tryAuthMethod dispatches one USERAUTH_REQUEST to the matching
// method handler; "none" always fails (it exists only so the client
// can learn acceptable methods, RFC 4252 §5.2).
func tryAuthMethod(t *transport, sessionID []byte, db UserDB, req userAuthRequestMsg, q quirk) (bool, error) {
	switch req.Method {
	case "none":
		return false, nil
	case "password":
		return tryPassword(db, req)
	case "publickey":
		return tryPublicKey(t, sessionID, db, req, q)
	case "keyboard-interactive":
		return tryKeyboardInteractive(t, db, req)
	default:
		return false, nil
	}
}

func tryPassword(db UserDB, req userAuthRequestMsg) (bool, error) {
	if db == nil {
		return false, nil
	}
	rest := req.Rest
	if len(rest) < 1 {
		return false, newError(BadData, "truncated password request")
	}
	rest = rest[1:] // change-password boolean, ignored
	pw, _, ok := parseString(rest)
	if !ok {
		return false, newError(BadData, "truncated password request")
	}
	return db.Password(req.User, string(pw))
}

func tryPublicKey(t *transport, sessionID []byte, db UserDB, req userAuthRequestMsg, q quirk) (bool, error) {
	if db == nil {
		return false, nil
	}
	rest := req.Rest
	if len(rest) < 1 {
		return false, newError(BadData, "truncated publickey request")
	}
	hasSig := rest[0] != 0
	rest = rest[1:]

	algo, rest, ok := parseString(rest)
	if !ok {
		return false, newError(BadData, "truncated publickey request")
	}
	blobLen, rest2, ok := parseUint32(rest)
	if !ok {
		return false, newError(BadData, "truncated publickey request")
	}
	if uint32(len(rest2)) < blobLen {
		return false, newError(BadData, "truncated publickey blob")
	}
	blob := rest2[:blobLen]
	rest = rest2[blobLen:]

	key, ok := ParsePublicKey(blob)
	if !ok {
		return false, nil
	}
	if cert, isCert := key.(*OpenSSHCertV01); isCert {
		if err := cert.checkValidity(UserCert, req.User, time.Now()); err != nil {
			return false, err
		}
	}
	authorized, err := db.PublicKey(req.User, key)
	if err != nil || !authorized {
		return false, err
	}

	if !hasSig {
		// Probe only: tell the client this key would be accepted.
		var payload []byte
		payload = appendString(payload, string(algo))
		payload = appendU32(payload, blobLen)
		payload = append(payload, blob...)
		return false, t.writePacket(append([]byte{msgUserAuthPubKeyOk}, payload...))
	}

	sigLen, rest3, ok := parseUint32(rest)
	if !ok || uint32(len(rest3)) < sigLen {
		return false, newError(BadData, "truncated signature")
	}
	sigBlob := rest3[:sigLen]

	data := buildDataSignedForAuth(sessionID, req, algo, blob, q)
	sigAlgo := pubAlgoToPrivAlgo(string(algo))
	sig, tail, ok := parseSignatureBody(canonicalizeSignature(sigAlgo, sigBlob, q))
	if !ok || len(tail) > 0 || sig.Format != sigAlgo || !key.Verify(data, sig.Blob) {
		return false, nil
	}
	return true, nil
}

func tryKeyboardInteractive(t *transport, db UserDB, req userAuthRequestMsg) (bool, error) {
	if db == nil {
		return false, nil
	}
	ok, prompts, echos, instruction, err := db.KeyboardInteractive(req.User, nil)
	if err != nil {
		return false, err
	}
	for !ok && len(prompts) > 0 {
		var payload []byte
		payload = appendU32(payload, uint32(len(prompts)))
		for i, p := range prompts {
			payload = appendString(payload, p)
			payload = appendBool(payload, echos[i])
		}
		if err := t.writePacket(marshal(msgUserAuthInfoRequest, userAuthInfoRequestMsg{
			Name:        "",
			Instruction: instruction,
			NumPrompts:  uint32(len(prompts)),
			Prompts:     payload[4:],
		})); err != nil {
			return false, err
		}
		packet, err := t.readPacket()
		if err != nil {
			return false, err
		}
		var resp userAuthInfoResponseMsg
		if err := unmarshal(&resp, packet, msgUserAuthInfoResponse); err != nil {
			return false, err
		}
		answers, _, err := splitResponses(resp)
		if err != nil {
			return false, err
		}
		ok, prompts, echos, instruction, err = db.KeyboardInteractive(req.User, answers)
		if err != nil {
			return false, err
		}
	}
	return ok, nil
}

func splitResponses(resp userAuthInfoResponseMsg) ([]string, []byte, error) {
	rest := resp.Responses
	out := make([]string, 0, resp.NumResponses)
	for i := uint32(0); i < resp.NumResponses; i++ {
		s, tail, ok := parseString(rest)
		if !ok {
			return nil, nil, newError(BadData, "truncated response list")
		}
		out = append(out, string(s))
		rest = tail
	}
	return out, rest, nil
}

// looksLikePassword detects the PAM-as-keyboard-interactive pattern
// (quirkPAMPW): the prompt text begins with "password", case
// insensitive, RFC-unspecified but near-universal server behavior.
func looksLikePassword(prompt string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(prompt)), "password")
}
