// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"net"
	"sync"
	"time"
)

// forward pairs an incoming forwarded-tcpip channel with the
// originating address the server reported, handed off from
// ClientConn.handleChanOpen to whichever Listener registered the
// bound address.
type forward struct {
	channel *Channel
	addr    *net.TCPAddr
}

// forwardList is the resolution of SPEC_FULL §D.3: the source only
// parsed tcpip-forward requests without completing them end-to-end;
// this finishes the loop by tracking one delivery channel per
// requested bind address so handleChanOpen can route an inbound
// forwarded-tcpip open to the right Listener.
type forwardList struct {
	mu    sync.Mutex
	table map[string]chan forward
}

func (l *forwardList) add(addr net.TCPAddr) chan forward {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table == nil {
		l.table = make(map[string]chan forward)
	}
	ch := make(chan forward, 1)
	l.table[addr.String()] = ch
	return ch
}

func (l *forwardList) lookup(addr net.TCPAddr) (chan forward, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.table[addr.String()]
	return ch, ok
}

func (l *forwardList) remove(addr net.TCPAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.table, addr.String())
}

func (l *forwardList) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.table {
		close(ch)
	}
	l.table = nil
}

// Listener is a net.Listener backed by an SSH tcpip-forward request:
// Accept returns one net.Conn per forwarded-tcpip channel the server
// opens back to us.
type Listener struct {
	conn *ClientConn
	addr net.TCPAddr
	in   chan forward
}

// ListenTCP asks the server to forward connections arriving at laddr
// back to us over forwarded-tcpip channels (RFC 4254 §7.1).
func (c *ClientConn) ListenTCP(laddr *net.TCPAddr) (*Listener, error) {
	var payload []byte
	payload = appendString(payload, laddr.IP.String())
	payload = appendU32(payload, uint32(laddr.Port))

	reply, err := c.sendGlobalRequest("tcpip-forward", true, payload)
	if err != nil {
		return nil, err
	}

	bound := *laddr
	if laddr.Port == 0 && reply != nil && len(reply.Data) >= 4 {
		port, _, ok := parseUint32(reply.Data)
		if ok {
			bound.Port = int(port)
		}
	}

	in := c.forwards.add(bound)
	return &Listener{conn: c, addr: bound, in: in}, nil
}

func (l *Listener) Accept() (net.Conn, error) {
	fwd, ok := <-l.in
	if !ok {
		return nil, newError(Complete, "listener closed")
	}
	return &channelConn{Channel: fwd.channel, laddr: &l.addr, raddr: fwd.addr}, nil
}

func (l *Listener) Addr() net.Addr { return &l.addr }

// Close cancels the forwarding request and stops delivering new
// connections; channels already handed to Accept are unaffected.
func (l *Listener) Close() error {
	l.conn.forwards.remove(l.addr)
	var payload []byte
	payload = appendString(payload, l.addr.IP.String())
	payload = appendU32(payload, uint32(l.addr.Port))
	_, err := l.conn.sendGlobalRequest("cancel-tcpip-forward", true, payload)
	return err
}

// channelConn adapts a Channel to net.Conn so forwarded and direct
// connections can be handed to code (e.g. io.Copy, http.Serve) that
// only knows about net.Conn.
type channelConn struct {
	*Channel
	laddr, raddr net.Addr
}

func (c *channelConn) LocalAddr() net.Addr  { return c.laddr }
func (c *channelConn) RemoteAddr() net.Addr { return c.raddr }

// SetDeadline/SetReadDeadline/SetWriteDeadline are no-ops: channel
// flow is governed by SSH-level windows, not socket deadlines. A
// deadline would only apply to the underlying transport, which is
// shared by every multiplexed channel, so there is no per-channel
// socket to apply it to.
func (c *channelConn) SetDeadline(t time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(t time.Time) error { return nil }

// DialTCP opens a direct-tcpip channel to raddr, the client-initiated
// counterpart to ListenTCP (RFC 4254 §7.2).
func (c *ClientConn) DialTCP(network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
	if laddr == nil {
		laddr = &net.TCPAddr{IP: net.IPv4zero, Port: 0}
	}
	var payload []byte
	payload = appendString(payload, raddr.IP.String())
	payload = appendU32(payload, uint32(raddr.Port))
	payload = appendString(payload, laddr.IP.String())
	payload = appendU32(payload, uint32(laddr.Port))

	ch, err := c.OpenChannel("direct-tcpip", payload)
	if err != nil {
		return nil, err
	}
	return &channelConn{Channel: ch, laddr: laddr, raddr: raddr}, nil
}

// copyLoop pumps bytes between a forwarded channel and the local
// net.Conn it corresponds to; used by server.go's tcpip-forward
// listener loop.
func copyLoop(ch *Channel, conn net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(ch, conn)
		ch.Close()
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, ch)
		conn.Close()
		done <- struct{}{}
	}()
	<-done
	<-done
}
