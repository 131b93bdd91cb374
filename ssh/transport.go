// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"crypto"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"hash"
	"io"
	"net"
	"sync"
)

const (
	minPacketLength = 16
	// packetSizeMultiple is the "multiple of max(cipher_block, 8)"
	// requirement from §4.1; 8 is the floor used before a cipher is
	// negotiated and for stream ciphers with a 0 block size.
	packetSizeMultiple = 8
	// maxPacketSize bounds packet_length, §6.5.
	maxPacketSize = 262144
	// passwordPaddingBlock: user-auth packets carrying a password are
	// padded up to the next multiple of this size to hide password
	// length (§4.1, §9 "traffic-analysis countermeasure").
	passwordPaddingBlock = 256
)

// direction holds the per-direction key schedule: the active
// cipher/MAC and sequence counter. NEWKEYS swaps cipher/mac/iv for
// one direction at a time, independent of the other (§3.1).
type direction struct {
	mu sync.Mutex

	cipherAlgo      string
	macAlgo         string
	compressionAlgo string

	packetCipher interface{} // cipher.Stream or cbcMode, nil before NEWKEYS
	mac          hash.Hash
	seqNum       uint32
	padPassword  bool // next packet is a password auth packet
}

func (d *direction) secure() bool { return d.packetCipher != nil }

// transport is the Packet Codec (component A): it owns the framed,
// optionally encrypted/MAC'd record layer over an underlying
// io.ReadWriter, independent read/write sequence numbers and key
// schedules.
type transport struct {
	io.Closer
	rw     io.ReadWriter
	reader direction
	writer direction
	rand   io.Reader

	bufr *bufio.Reader
	bufw *bufio.Writer

	quirks quirk
}

func newTransport(rw io.ReadWriter, rnd io.Reader) *transport {
	if rnd == nil {
		rnd = rand.Reader
	}
	t := &transport{
		rw:   rw,
		rand: rnd,
		bufr: bufio.NewReader(rw),
		bufw: bufio.NewWriter(rw),
	}
	if c, ok := rw.(io.Closer); ok {
		t.Closer = c
	}
	return t
}

func (t *transport) Write(p []byte) (int, error) { return t.bufw.Write(p) }
func (t *transport) Flush() error                { return t.bufw.Flush() }
func (t *transport) Read(p []byte) (int, error)  { return t.bufr.Read(p) }

// RemoteAddr satisfies the same shape as net.Conn for callers that
// want it; absent on a plain io.ReadWriter it returns nil.
func (t *transport) RemoteAddr() net.Addr {
	if a, ok := t.rw.(net.Conn); ok {
		return a.RemoteAddr()
	}
	return nil
}

func blockSizeOf(d *direction) int {
	switch c := d.packetCipher.(type) {
	case cbcMode:
		return c.BlockSize()
	default:
		_ = c
		return packetSizeMultiple
	}
}

// writePacket is wrap_and_send from §4.1; marshal() already plays the
// role of open_packet by writing the message type as payload[0], so
// the packet here is simply length-prefixed, padded, MAC'd and
// encrypted as a unit. writePacket computes padding, MACs and
// encrypts (if secure), and
// sends a fully-formed packet whose payload (including the leading
// type byte) is `payload`. It increments the outbound sequence
// number exactly once per call, matching invariant 1 in §8.
func (t *transport) writePacket(payload []byte) error {
	t.writer.mu.Lock()
	defer t.writer.mu.Unlock()

	blockSize := packetSizeMultiple
	if t.writer.secure() {
		blockSize = blockSizeOf(&t.writer)
		if blockSize < packetSizeMultiple {
			blockSize = packetSizeMultiple
		}
	}

	paddingBlock := blockSize
	if t.writer.padPassword {
		paddingBlock = passwordPaddingBlock
		t.writer.padPassword = false
	}

	length := len(payload) + 1 // +1 for the padding-length byte itself
	padding := paddingBlock - (length+4)%paddingBlock
	if padding < 4 {
		padding += paddingBlock
	}

	packet := make([]byte, 4+1+len(payload)+padding)
	binary.BigEndian.PutUint32(packet, uint32(1+len(payload)+padding))
	packet[4] = byte(padding)
	copy(packet[5:], payload)
	padBytes := packet[5+len(payload):]
	if t.writer.secure() {
		if _, err := io.ReadFull(t.rand, padBytes); err != nil {
			return wrapError(Write, "failed to generate padding", err)
		}
	}

	if t.writer.secure() {
		if t.writer.mac != nil {
			t.writer.mac.Reset()
			var seq [4]byte
			binary.BigEndian.PutUint32(seq[:], t.writer.seqNum)
			t.writer.mac.Write(seq[:])
			t.writer.mac.Write(packet)
		}
		switch c := t.writer.packetCipher.(type) {
		case cipher.Stream:
			c.XORKeyStream(packet, packet)
		case cbcMode:
			if len(packet)%c.BlockSize() != 0 {
				return newError(BadData, "packet not block aligned")
			}
			c.CryptBlocks(packet, packet)
		}
	}

	if _, err := t.Write(packet); err != nil {
		return wrapError(Write, "transport write failed", err)
	}
	if t.writer.secure() && t.writer.mac != nil {
		mac := t.writer.mac.Sum(nil)
		if _, err := t.Write(mac); err != nil {
			return wrapError(Write, "transport write failed", err)
		}
	}
	t.writer.seqNum++
	return t.Flush()
}

// readPacket reads, decrypts, MAC-verifies and depads one packet,
// returning its payload with the leading type byte still attached
// (so callers can switch on packet[0]).
func (t *transport) readPacket() ([]byte, error) {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()

	blockSize := packetSizeMultiple
	if t.reader.secure() {
		blockSize = blockSizeOf(&t.reader)
		if blockSize < packetSizeMultiple {
			blockSize = packetSizeMultiple
		}
	}
	if blockSize < 4 {
		blockSize = 4
	}

	first := make([]byte, blockSize)
	if _, err := io.ReadFull(t, first); err != nil {
		return nil, classifyReadErr(err)
	}

	if t.reader.secure() {
		switch c := t.reader.packetCipher.(type) {
		case cipher.Stream:
			c.XORKeyStream(first, first)
		case cbcMode:
			c.CryptBlocks(first, first)
		}
	}

	length := binary.BigEndian.Uint32(first)
	if length > maxPacketSize-4 {
		return nil, newError(BadData, "packet too large")
	}

	macSize := 0
	if t.reader.secure() && t.reader.mac != nil {
		macSize = t.reader.mac.Size()
	}

	rest := make([]byte, int(length)+4-len(first)+macSize)
	if _, err := io.ReadFull(t, rest); err != nil {
		return nil, classifyReadErr(err)
	}

	mac := rest[len(rest)-macSize:]
	encryptedRest := rest[:len(rest)-macSize]

	if t.reader.secure() {
		switch c := t.reader.packetCipher.(type) {
		case cipher.Stream:
			c.XORKeyStream(encryptedRest, encryptedRest)
		case cbcMode:
			if len(encryptedRest)%c.BlockSize() != 0 {
				return nil, newError(BadData, "packet not block aligned")
			}
			c.CryptBlocks(encryptedRest, encryptedRest)
		}
	}

	plaintext := append(first, encryptedRest...)

	if macSize > 0 {
		t.reader.mac.Reset()
		var seq [4]byte
		binary.BigEndian.PutUint32(seq[:], t.reader.seqNum)
		t.reader.mac.Write(seq[:])
		t.reader.mac.Write(plaintext)
		expected := t.reader.mac.Sum(nil)
		if !bytesEqual(expected, mac) {
			return nil, badMAC()
		}
	}

	t.reader.seqNum++

	if len(plaintext) < 5 {
		return nil, newError(BadData, "packet too short")
	}
	paddingLength := int(plaintext[4])
	if paddingLength < 4 {
		return nil, newError(BadData, "padding too short")
	}
	payloadLength := int(length) - paddingLength - 1
	if payloadLength < 0 || 5+payloadLength > len(plaintext) {
		return nil, newError(BadData, "payload length inconsistent with packet length")
	}
	if int(length)+4 < minPacketLength {
		return nil, newError(BadData, "packet length below minimum")
	}

	payload := plaintext[5 : 5+payloadLength]

	if len(payload) >= 7 && string(payload[0:7]) == "FATAL: " {
		t.quirks |= quirkTextDiags
		return payload, newError(BadData, "peer sent a text diagnostic instead of a protocol message")
	}

	return payload, nil
}

func classifyReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return newError(Complete, "connection closed")
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return wrapError(Timeout, "read timed out", err)
	}
	return wrapError(Read, "transport read failed", err)
}

// setupKeys derives and installs this direction's three of the six
// cryptovariables of §3.3 (IV, cipher key, MAC key), then activates the negotiated cipher/MAC. dir picks
// which of the six hash-chain labels (A..F) this direction uses;
// isRead says whether the resulting packetCipher decrypts (true) or
// encrypts (false).
func (d *direction) setupKeys(dir keyDirection, isRead bool, K, H, sessionID []byte, hash crypto.Hash, q quirk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cm, ok := cipherModes[d.cipherAlgo]
	if !ok {
		return newError(NotAvailable, "unknown cipher "+d.cipherAlgo)
	}
	mm, ok := macModes[d.macAlgo]
	if !ok {
		return newError(NotAvailable, "unknown mac "+d.macAlgo)
	}

	var ivTag, keyTag, macTag byte
	switch dir {
	case clientKeys:
		ivTag, keyTag, macTag = 'A', 'C', 'E'
	case serverKeys:
		ivTag, keyTag, macTag = 'B', 'D', 'F'
	}

	iv := generateKeyMaterial(K, H, ivTag, sessionID, hash, cm.ivSize)
	key := generateKeyMaterial(K, H, keyTag, sessionID, hash, cm.keySize)
	macKeySize := mm.keySize
	if q.has(quirkHMACKeySize) {
		macKeySize = 16
	}
	macKey := generateKeyMaterial(K, H, macTag, sessionID, hash, macKeySize)

	pc, err := cm.create(key, iv, isRead)
	if err != nil {
		return wrapError(BadData, "cipher init failed", err)
	}
	d.packetCipher = pc
	d.mac = mm.new(macKey)
	return nil
}

// keyDirection picks the A/C/E vs B/D/F hash-chain labels of §3.3:
// clientKeys are the cryptovariables flowing client→server,
// serverKeys the ones flowing server→client. Each endpoint installs
// clientKeys on its write side (or read side) depending on role.
type keyDirection int

const (
	clientKeys keyDirection = iota
	serverKeys
)
