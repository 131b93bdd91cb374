// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os/exec"

	"github.com/aox/sshgate/ssh"
)

// handleSession services one "session" channel's CHANNEL_REQUESTs.
// Only "exec" actually runs anything; "pty-req", "shell", "env", and
// "subsystem" are acknowledged so well-behaved clients don't hang waiting for a
// reply, but no pty or interactive shell is allocated.
func handleSession(conn *ssh.ServerConn, ch *ssh.Channel, requests <-chan *ssh.ChannelRequest) {
	defer ch.Close()

	for req := range requests {
		switch req.Request {
		case "exec":
			cmdline, ok := parseExecPayload(req.RequestSpecificData)
			conn.Reply(ch, req, ok)
			if ok {
				runExec(ch, cmdline)
				return
			}
		case "pty-req", "shell", "env", "subsystem":
			conn.Reply(ch, req, true)
		default:
			conn.Reply(ch, req, false)
		}
	}
}

// parseExecPayload decodes the single length-prefixed command string
// an "exec" CHANNEL_REQUEST carries, RFC 4254 §6.5.
func parseExecPayload(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	n := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	data = data[4:]
	if uint32(len(data)) < n {
		return "", false
	}
	return string(data[:n]), true
}

const extendedDataStderr = 1

func runExec(ch *ssh.Channel, cmdline string) {
	cmd := exec.Command("/bin/sh", "-c", cmdline)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return
	}
	if err := cmd.Start(); err != nil {
		return
	}
	go func() {
		io.Copy(stdin, ch)
		stdin.Close()
	}()
	go io.Copy(ch, stdout)
	go copyToExtended(ch, stderr)
	cmd.Wait()
}

func copyToExtended(ch *ssh.Channel, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := ch.WriteExtended(extendedDataStderr, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
