// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"net"
	"testing"
)

// fakeServerPipe returns a client transport over one end of a
// net.Pipe and the raw other end, which the test scripts to stand in
// for a peer feeding the client auth methods a scripted response.
func fakeServerPipe(t *testing.T) (client *transport, serverConn net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return newTransport(a, nil), b
}

func TestClientAuthInteractiveRejectsNonPasswordPrompt(t *testing.T) {
	client, serverConn := fakeServerPipe(t)

	go func() {
		// drain the USERAUTH_REQUEST the client sends first.
		tr := newTransport(serverConn, nil)
		tr.readPacket()

		req := userAuthInfoRequestMsg{
			Name:       "",
			NumPrompts: 1,
		}
		req.Prompts = appendBool(appendString(nil, "Favorite color: "), true)
		tr.writePacket(marshal(msgUserAuthInfoRequest, req))
		tr.Flush()
	}()

	challenged := false
	method := ClientAuthInteractive{Challenger: challengeFunc(func(name, instr string, qs []string, echos []bool) ([]string, error) {
		challenged = true
		return make([]string, len(qs)), nil
	})}

	ok, _, err := method.auth(nil, "alice", client, nil)
	if ok {
		t.Error("auth() should not succeed for a non-password prompt set")
	}
	if err == nil {
		t.Fatal("expected an error rejecting the unsupported prompt set")
	}
	se, isErr := err.(*Error)
	if !isErr || se.Kind != NotInited {
		t.Errorf("err = %v, want Kind=NotInited", err)
	}
	if challenged {
		t.Error("Challenger should never be invoked when no prompt looks like a password")
	}
}

// challengeFunc adapts a plain function to ClientKeyboardInteractive.
type challengeFunc func(name, instruction string, questions []string, echos []bool) ([]string, error)

func (f challengeFunc) Challenge(name, instruction string, questions []string, echos []bool) ([]string, error) {
	return f(name, instruction, questions, echos)
}
