// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"sync"
)

// maxActiveChannels is the hard cap on simultaneously active
// channels per connection, §3.4.
const maxActiveChannels = 4

// maxWindowSize disables SSH-level flow control by always
// advertising the largest possible window, per §4.5/§9's explicit
// "lean on TCP" policy.
const maxWindowSize = 1<<31 - 1

const defaultMaxPacket = 1 << 14 // 16384, §6.5 default send buffer.

type channelState int

const (
	channelOpening channelState = iota
	channelActive
	channelWriteClosed
	channelClosed
)

// chanExtTypeStderr is RFC 4254 5.2's extended-data type code for stderr.
const chanExtTypeStderr = 1

// Channel is the application-visible handle on one multiplexed
// logical stream (§3.4). Stderr is the resolution of the §9 open
// question: CHANNEL_EXTENDED_DATA is surfaced, not dropped.
type Channel struct {
	t *transport

	localId  uint32
	remoteId uint32

	chanType string
	extra    []byte

	mu    sync.Mutex
	state channelState

	maxPacket uint32

	myWindow  window
	remoteWin window
	windowBug bool // quirkWindowBug: adjust unconditionally
	highWater uint32

	stdout *chanReader
	stderr *chanReader

	msg chan interface{} // administrative replies (open confirm, request result, ...)
}

func newChannel(t *transport, localId uint32, chanType string, windowBug bool) *Channel {
	ch := &Channel{
		t:         t,
		localId:   localId,
		chanType:  chanType,
		state:     channelOpening,
		maxPacket: defaultMaxPacket,
		windowBug: windowBug,
		msg:       make(chan interface{}, 16),
	}
	ch.myWindow.Cond = newCond()
	ch.myWindow.win = maxWindowSize
	ch.remoteWin.Cond = newCond()
	ch.stdout = newChanReader()
	ch.stderr = newChanReader()
	return ch
}

// chanList is the flat, indexed channel arena of §9: a connection
// owns a table of channels, code carries (ConnectionRef, ChannelIndex)
// pairs instead of back-references.
type chanList struct {
	mu    sync.Mutex
	chans []*Channel
}

func (c *chanList) newChannel(t *transport, chanType string, windowBug bool) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeCountLocked() >= maxActiveChannels {
		return nil, newError(Overflow, "too many active channels")
	}
	channelsActive.Inc()
	for i := range c.chans {
		if c.chans[i] == nil {
			ch := newChannel(t, uint32(i), chanType, windowBug)
			c.chans[i] = ch
			return ch, nil
		}
	}
	id := uint32(len(c.chans))
	ch := newChannel(t, id, chanType, windowBug)
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *chanList) activeCountLocked() int {
	n := 0
	for _, ch := range c.chans {
		if ch != nil {
			n++
		}
	}
	return n
}

func (c *chanList) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCountLocked()
}

func (c *chanList) get(id uint32) (*Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id >= uint32(len(c.chans)) || c.chans[id] == nil {
		return nil, false
	}
	return c.chans[id], true
}

func (c *chanList) remove(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < uint32(len(c.chans)) && c.chans[id] != nil {
		c.chans[id] = nil
		channelsActive.Dec()
	}
}

func (c *chanList) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.chans {
		if ch == nil {
			continue
		}
		ch.closeLocally()
		c.chans[i] = nil
		channelsActive.Dec()
	}
}

// --- Channel operations -----------------------------------------------

// Read reads application payload from the channel, returning
// io.EOF once the remote side has sent CHANNEL_EOF/CLOSE and no
// more data is buffered.
func (c *Channel) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

// Stderr returns the reader fed by CHANNEL_EXTENDED_DATA{type=1}
// packets (stderr on interactive sessions); see SPEC_FULL §D.1.
func (c *Channel) Stderr() io.Reader {
	return c.stderr
}

// Write sends application payload, chunked into maxPacket-sized
// CHANNEL_DATA messages and gated by the peer's advertised window
// (§4.5 back-pressure).
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.state == channelWriteClosed || c.state == channelClosed {
		c.mu.Unlock()
		return 0, newError(BadData, "write on closed channel")
	}
	c.mu.Unlock()

	written := 0
	for len(p) > 0 {
		want := uint32(len(p))
		if want > c.maxPacket {
			want = c.maxPacket
		}
		n := c.remoteWin.reserve(want)
		if n == 0 {
			return written, newError(Overflow, "peer window exhausted")
		}
		chunk := p[:n]
		p = p[n:]

		msg := channelDataMsg{PeersId: c.remoteId, Length: uint32(len(chunk)), Rest: chunk}
		if err := c.t.writePacket(marshal(msgChannelData, msg)); err != nil {
			return written, err
		}
		channelBytesTotal.WithLabelValues("out").Add(float64(len(chunk)))
		written += len(chunk)
	}
	return written, nil
}

// SendRequest issues a CHANNEL_REQUEST (pty-req, shell, exec,
// subsystem, ...), RFC 4254 §5.4. When wantReply is true it blocks
// for the matching CHANNEL_SUCCESS/FAILURE and returns whether the
// peer accepted it; with wantReply false it returns immediately.
func (c *Channel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	if err := c.t.writePacket(marshal(msgChannelRequest, channelRequestMsg{
		PeersId:             c.remoteId,
		Request:             name,
		WantReply:           wantReply,
		RequestSpecificData: payload,
	})); err != nil {
		return false, err
	}
	if !wantReply {
		return true, nil
	}
	reply, ok := <-c.msg
	if !ok {
		return false, newError(Complete, "channel closed while awaiting request reply")
	}
	switch reply.(type) {
	case *channelRequestSuccessMsg:
		return true, nil
	case *channelRequestFailureMsg:
		return false, nil
	default:
		return false, newError(BadData, "unexpected reply to channel request")
	}
}

// WriteExtended sends p as a CHANNEL_EXTENDED_DATA message of the
// given type (chanExtTypeStderr for stderr, RFC 4254 §5.2), chunked
// and window-gated exactly like Write.
func (c *Channel) WriteExtended(dataType uint32, p []byte) (int, error) {
	c.mu.Lock()
	if c.state == channelWriteClosed || c.state == channelClosed {
		c.mu.Unlock()
		return 0, newError(BadData, "write on closed channel")
	}
	c.mu.Unlock()

	written := 0
	for len(p) > 0 {
		want := uint32(len(p))
		if want > c.maxPacket {
			want = c.maxPacket
		}
		n := c.remoteWin.reserve(want)
		if n == 0 {
			return written, newError(Overflow, "peer window exhausted")
		}
		chunk := p[:n]
		p = p[n:]

		msg := channelExtendedDataMsg{PeersId: c.remoteId, DataType: dataType, Length: uint32(len(chunk)), Rest: chunk}
		if err := c.t.writePacket(marshal(msgChannelExtendedData, msg)); err != nil {
			return written, err
		}
		channelBytesTotal.WithLabelValues("out").Add(float64(len(chunk)))
		written += len(chunk)
	}
	return written, nil
}

// handleWindowAdjust processes CHANNEL_WINDOW_ADJUST, invariant 4 of
// §8: sum(bytes_received) ≤ initial_window + sum(advertised_window_adjust).
func (c *Channel) handleWindowAdjust(n uint32) error {
	if !c.remoteWin.add(n) {
		return newError(BadData, "window overflow")
	}
	return nil
}

// accountIncoming updates the local receive window after `n` bytes
// of CHANNEL_DATA/EXTENDED_DATA arrive, enqueuing an unsolicited
// CHANNEL_WINDOW_ADJUST per §4.5 when the remaining window would
// fall below the high watermark (or unconditionally for windowBug
// peers).
func (c *Channel) accountIncoming(n uint32) (adjust uint32, send bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highWater += n
	const watermark = defaultMaxPacket * 2
	if c.windowBug {
		adjust = c.highWater
		c.highWater = 0
		return adjust, true
	}
	if c.highWater >= watermark {
		adjust = c.highWater
		c.highWater = 0
		return adjust, true
	}
	return 0, false
}

// Close sends CHANNEL_CLOSE if not already sent; mirrors the
// teacher's chanList.closeAll semantics for a single channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	already := c.state == channelClosed
	c.state = channelClosed
	c.mu.Unlock()
	if already {
		return newError(BadData, "not found")
	}
	c.stdout.eof()
	c.stderr.eof()
	return c.t.writePacket(marshal(msgChannelClose, channelCloseMsg{PeersId: c.remoteId}))
}

func (c *Channel) closeLocally() {
	c.mu.Lock()
	c.state = channelClosed
	c.mu.Unlock()
	c.stdout.eof()
	c.stderr.eof()
	close(c.msg)
}

// --- chanReader: a small buffered pipe used for stdout/stderr ---------

type chanReader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newChanReader() *chanReader {
	r := &chanReader{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *chanReader) write(p []byte) {
	r.mu.Lock()
	r.buf = append(r.buf, p...)
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *chanReader) eof() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *chanReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.buf) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.buf) == 0 && r.closed {
		return 0, io.EOF
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
