// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "strings"

// quirk is a closed enumeration of peer bugs detected from the
// software-version substring of the peer's identification line.
// Names follow the SSH_PFLAG_* bitset of the cryptlib original this
// package's protocol layer was distilled from (session/ssh.h); each
// quirk's effect is isolated to exactly one code path.
type quirk uint32

const quirkNone quirk = 0

const (
	// quirkNoHashLength omits the length prefix of the session id
	// when hashing publickey-auth signed data.
	quirkNoHashLength quirk = 1 << iota
	quirkHMACKeySize
	quirkSigFormat
	quirkNoHashSecret
	quirkWindowBug
	quirkTextDiags
	quirkPAMPW
	quirkCuteFTP
	quirkTectia
)

// detectQuirks maps known peer version substrings to the quirks
// their implementations are known to need. The match is deliberately
// loose (substring, not exact), matching how the original detects
// peer software from banner text.
func detectQuirks(peerVersion []byte) quirk {
	v := string(peerVersion)
	var q quirk

	switch {
	case strings.Contains(v, "SSH-1.99-OpenSSH"):
		q |= quirkNoHashSecret
	case strings.Contains(v, "OpenSSH"):
		// Modern OpenSSH needs no quirks; kept as an explicit case so
		// future version-range carve-outs have somewhere to go.
	case strings.Contains(v, "ssh-2.0-cisco"), strings.Contains(v, "SSH-2.0-Cisco"):
		q |= quirkHMACKeySize
	case strings.Contains(v, "SSH-2.0-dropbear"):
		q |= quirkSigFormat
	}

	switch {
	case strings.Contains(v, "SSH-2.0-WinSSHD"), strings.Contains(v, "SSH-2.0-Tectia"):
		q |= quirkTectia | quirkPAMPW
	}

	if strings.Contains(v, "SSH-2.0-CuteFTP") {
		q |= quirkCuteFTP
	}

	if strings.Contains(v, "SSH-2.0-RSSH") || strings.Contains(v, "SSH-2.0-OSSH") {
		q |= quirkNoHashLength
	}

	if strings.Contains(v, "SSH-2.0-PuTTY_Local") {
		q |= quirkWindowBug
	}

	// TEXT_DIAGS is never learned from the version string: it's
	// discovered at runtime the first time a decrypted payload starts
	// with "FATAL: " and latched for the rest of the connection; see
	// transport.go's readPacket.
	return q
}

func (q quirk) has(f quirk) bool { return q&f != 0 }
