// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	crand "crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// serverVersion is the default identification string the server
// sends, RFC 4253 §4.2.
var serverVersion = []byte("SSH-2.0-sshgate_1.0")

// HostKeyProvider resolves the private key a ServerConn signs the
// exchange hash with; a real deployment backs this with a key store
// (the "Key Provider" external collaborator of the core purpose).
type HostKeyProvider interface {
	HostKey(algo string) (PrivateKey, bool)
}

// singleHostKey is the common case: one fixed key, any algo it supports.
type singleHostKey struct{ key PrivateKey }

func (s singleHostKey) HostKey(algo string) (PrivateKey, bool) {
	if s.key.PrivateKeyAlgo() != algo {
		return nil, false
	}
	return s.key, true
}

// StaticHostKey wraps a single PrivateKey as a HostKeyProvider.
func StaticHostKey(key PrivateKey) HostKeyProvider { return singleHostKey{key} }

// ServerConfig configures a server connection.
type ServerConfig struct {
	Rand io.Reader

	HostKeys HostKeyProvider

	// Users answers authentication callbacks; nil rejects every
	// method other than the mandatory no-op "none" probe.
	Users UserDB

	Crypto CryptoConfig

	ServerVersion string

	// Throttle, if set, bounds how many connections per source
	// address may enter authentication (SPEC_FULL §B). Nil disables
	// throttling entirely.
	Throttle *AuthThrottle

	// NewChannel is invoked, in its own goroutine, for each
	// CHANNEL_OPEN whose type is "session", after the channel has been
	// confirmed (§4.5's mirrored server-side open); requests carries
	// that channel's CHANNEL_REQUESTs. When NewChannel is nil, session
	// opens are rejected.
	NewChannel func(conn *ServerConn, ch *Channel, requests <-chan *ChannelRequest)

	Log *logrus.Entry
}

func (c *ServerConfig) rand() io.Reader {
	if c.Rand == nil {
		return crand.Reader
	}
	return c.Rand
}

func (c *ServerConfig) log() *logrus.Entry {
	if c.Log == nil {
		return defaultLogger()
	}
	return c.Log
}

// ServerConn mirrors ClientConn for the accepting side of a
// connection.
type ServerConn struct {
	*transport
	config *ServerConfig

	chans    chanList
	forwards serverForwardList

	peerVersion        string
	serverVersionBytes []byte
	peerVersionBytes   []byte
	sessionID          []byte
	quirks             quirk
	user               string

	log *logrus.Entry
}

// User returns the username authenticated by serveAuth.
func (c *ServerConn) User() string { return c.user }

// Server performs the server side of the handshake and
// authentication over an already-accepted net.Conn.
func Server(c net.Conn, config *ServerConfig) (*ServerConn, error) {
	conn := &ServerConn{
		transport: newTransport(c, config.rand()),
		config:    config,
		log:       config.log(),
	}
	if err := conn.handshake(); err != nil {
		handshakesTotal.WithLabelValues("server", "fail").Inc()
		conn.Close()
		return nil, err
	}

	source := remoteAddrString(c)
	if config.Throttle != nil {
		allowed, err := config.Throttle.Allow(source)
		if err != nil {
			conn.log.WithError(err).Warn("auth throttle check failed")
		} else if !allowed {
			conn.Close()
			return nil, newError(Overflow, "too many authentication attempts from "+source)
		}
	}

	user, err := serveAuth(conn.transport, conn.sessionID, config.Users, conn.quirks)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if config.Throttle != nil {
		if err := config.Throttle.Reset(source); err != nil {
			conn.log.WithError(err).Warn("auth throttle reset failed")
		}
	}
	conn.user = user
	return conn, nil
}

// Serve accepts connections on l, handshaking and authenticating
// each one on its own goroutine before calling handler.
func Serve(l net.Listener, config *ServerConfig, handler func(*ServerConn)) error {
	for {
		c, err := l.Accept()
		if err != nil {
			return wrapError(Read, "accept failed", err)
		}
		go func() {
			conn, err := Server(c, config)
			if err != nil {
				config.log().WithError(err).Warn("handshake/auth failed")
				c.Close()
				return
			}
			handler(conn)
		}()
	}
}

func (c *ServerConn) handshake() error {
	version := []byte(c.config.ServerVersion)
	if len(version) == 0 {
		version = serverVersion
	}
	c.serverVersionBytes = version
	wire := append(append([]byte{}, version...), '\r', '\n')
	if _, err := c.Write(wire); err != nil {
		return wrapError(Write, "writing version string failed", err)
	}
	if err := c.Flush(); err != nil {
		return wrapError(Write, "flushing version string failed", err)
	}

	peerVersion, err := readVersion(c)
	if err != nil {
		return err
	}
	c.peerVersionBytes = peerVersion
	c.peerVersion = string(peerVersion)
	c.quirks = detectQuirks(peerVersion)
	c.transport.quirks = c.quirks

	peerPacket, err := c.readPacket()
	if err != nil {
		return err
	}

	if err := c.performKex(peerPacket, true); err != nil {
		return err
	}

	c.log.WithField("peer", c.peerVersion).Debug("key exchange complete")
	handshakesTotal.WithLabelValues("server", "ok").Inc()
	return nil
}

// performKex runs one KEXINIT negotiation + key exchange + NEWKEYS
// round, mirroring ClientConn.performKex: first=true latches
// sessionID (§8), first=false is a mid-session rekey that keeps it.
func (c *ServerConn) performKex(peerPacket []byte, first bool) error {
	var magics handshakeMagics
	magics.serverVersion = c.serverVersionBytes
	magics.clientVersion = c.peerVersionBytes
	magics.clientKexInit = peerPacket

	var peerKexInit kexInitMsg
	if err := unmarshal(&peerKexInit, peerPacket, msgKexInit); err != nil {
		return err
	}

	localKexInit := kexInitMsg{
		KexAlgos:                c.config.Crypto.kexes(),
		ServerHostKeyAlgos:      c.supportedHostKeyAlgos(),
		CiphersClientServer:     c.config.Crypto.ciphers(),
		CiphersServerClient:     c.config.Crypto.ciphers(),
		MACsClientServer:        c.config.Crypto.macs(),
		MACsServerClient:        c.config.Crypto.macs(),
		CompressionClientServer: supportedCompressions,
		CompressionServerClient: supportedCompressions,
	}
	if _, err := io.ReadFull(c.config.rand(), localKexInit.Cookie[:]); err != nil {
		return wrapError(BadData, "generating kexinit cookie failed", err)
	}
	localPacket := marshal(msgKexInit, localKexInit)
	magics.serverKexInit = localPacket
	if err := c.writePacket(localPacket); err != nil {
		return err
	}

	n, err := negotiateAsServer(&localKexInit, &peerKexInit)
	if err != nil {
		return err
	}
	c.transport.reader.cipherAlgo = n.cipherCtoS
	c.transport.reader.macAlgo = n.macCtoS
	c.transport.writer.cipherAlgo = n.cipherStoC
	c.transport.writer.macAlgo = n.macStoC

	if n.discardGuess {
		if _, err := c.readPacket(); err != nil {
			return err
		}
	}

	hostKey, ok := c.config.HostKeys.HostKey(n.hostKeyAlgo)
	if !ok {
		return newError(NotAvailable, "no host key for "+n.hostKeyAlgo)
	}

	result, err := c.runKex(n.kexAlgo, hostKey, &magics)
	if err != nil {
		return err
	}

	if first {
		c.sessionID = result.H
	}

	packet, err := c.readPacket()
	if err != nil {
		return err
	}
	if len(packet) == 0 || packet[0] != msgNewKeys {
		return UnexpectedMessageError{msgNewKeys, packet[0]}
	}
	if err := c.transport.reader.setupKeys(clientKeys, true, result.K, result.H, c.sessionID, result.Hash, c.quirks); err != nil {
		return err
	}
	if err := c.writePacket([]byte{msgNewKeys}); err != nil {
		return err
	}
	if err := c.transport.writer.setupKeys(serverKeys, false, result.K, result.H, c.sessionID, result.Hash, c.quirks); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{"kex": n.kexAlgo, "cipher": n.cipherCtoS, "rekey": !first}).Debug("key exchange complete")
	if !first {
		rekeysTotal.Inc()
	}
	return nil
}

func (c *ServerConn) supportedHostKeyAlgos() []string {
	if s, ok := c.config.HostKeys.(interface{ Algos() []string }); ok {
		return s.Algos()
	}
	return supportedHostKeyAlgos
}

func (c *ServerConn) runKex(kexAlgo string, hostKey PrivateKey, magics *handshakeMagics) (*kexResult, error) {
	rnd := c.config.rand()
	if group, ok := fixedGroup(kexAlgo); ok {
		return serverKexDH(c.transport, rnd, crypto.SHA1, group, magics, hostKey, c.quirks)
	}
	if kexAlgo == kexAlgoDHGEXSHA1 {
		return serverKexDHGEX(c.transport, rnd, crypto.SHA1, magics, hostKey, c.quirks)
	}
	return nil, newError(NotAvailable, "unsupported key exchange algorithm "+kexAlgo)
}

// Serve drives the post-auth connection phase: it reads packets
// until the transport closes, dispatching CHANNEL_OPEN("session")
// to config.NewChannel and tcpip-forward global requests to the
// server-side port forwarding helper.
func (c *ServerConn) Serve() {
	defer func() {
		c.Close()
		c.chans.closeAll()
		c.forwards.closeAll()
	}()

	for {
		packet, err := c.readPacket()
		if err != nil {
			return
		}
		if c.routeChannelData(packet) {
			continue
		}
		if packet[0] == msgKexInit {
			if err := c.performKex(packet, false); err != nil {
				c.log.WithError(err).Warn("rekey failed")
				return
			}
			continue
		}
		decoded, err := decode(packet)
		if err != nil {
			if _, ok := err.(UnexpectedMessageError); ok {
				continue
			}
			return
		}
		if !c.dispatch(decoded) {
			return
		}
	}
}

func (c *ServerConn) routeChannelData(packet []byte) bool {
	switch packet[0] {
	case msgChannelData:
		var msg channelDataMsg
		if unmarshal(&msg, packet, msgChannelData) != nil {
			return true
		}
		if ch, ok := c.chans.get(msg.PeersId); ok {
			if adjust, send := ch.accountIncoming(uint32(len(msg.Rest))); send {
				c.writePacket(marshal(msgChannelWindowAdjust, channelWindowAdjustMsg{PeersId: ch.remoteId, AdditionalBytes: adjust}))
			}
			channelBytesTotal.WithLabelValues("in").Add(float64(len(msg.Rest)))
			ch.stdout.write(msg.Rest)
		}
		return true
	case msgChannelExtendedData:
		var msg channelExtendedDataMsg
		if unmarshal(&msg, packet, msgChannelExtendedData) != nil {
			return true
		}
		if ch, ok := c.chans.get(msg.PeersId); ok && msg.DataType == chanExtTypeStderr {
			channelBytesTotal.WithLabelValues("in").Add(float64(len(msg.Rest)))
			ch.stderr.write(msg.Rest)
		}
		return true
	}
	return false
}

func (c *ServerConn) dispatch(decoded interface{}) bool {
	switch msg := decoded.(type) {
	case *channelOpenMsg:
		c.handleChanOpen(msg)
	case *channelCloseMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.closeLocally()
			c.chans.remove(msg.PeersId)
		}
	case *channelEOFMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.stdout.eof()
			ch.stderr.eof()
		}
	case *channelRequestMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			select {
			case ch.msg <- msg:
			default:
			}
		}
	case *windowAdjustMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.handleWindowAdjust(msg.AdditionalBytes)
		}
	case *globalRequestMsg:
		c.handleGlobalRequest(msg)
	case *disconnectMsg:
		return false
	case *debugMsg, *ignoreMsg, *unimplementedMsg:
	default:
		c.log.WithField("type", fmt.Sprintf("%T", msg)).Debug("unhandled message")
	}
	return true
}

// handleChanOpen mirrors the client's open path: only "session" is
// accepted directly, "direct-tcpip" is handed to the local dialer.
func (c *ServerConn) handleChanOpen(msg *channelOpenMsg) {
	switch msg.ChanType {
	case "session":
		if c.config.NewChannel == nil {
			c.rejectChanOpen(msg, UnknownChannelType, "sessions not supported")
			return
		}
		ch, err := c.acceptChanOpen(msg)
		if err != nil {
			return
		}
		requests := make(chan *ChannelRequest, 16)
		go c.pumpChannelRequests(ch, requests)
		go c.config.NewChannel(c, ch, requests)
	case "direct-tcpip":
		raddr, rest, ok := parseTCPAddr(msg.TypeSpecificData)
		if !ok {
			c.rejectChanOpen(msg, ConnectionFailed, "malformed direct-tcpip request")
			return
		}
		_, _, ok = parseTCPAddr(rest)
		if !ok {
			c.rejectChanOpen(msg, ConnectionFailed, "malformed direct-tcpip request")
			return
		}
		conn, err := net.Dial("tcp", raddr.String())
		if err != nil {
			c.rejectChanOpen(msg, ConnectionFailed, err.Error())
			return
		}
		ch, err := c.acceptChanOpen(msg)
		if err != nil {
			conn.Close()
			return
		}
		go copyLoop(ch, conn)
	default:
		c.rejectChanOpen(msg, UnknownChannelType, "unknown channel type: "+msg.ChanType)
	}
}

func (c *ServerConn) acceptChanOpen(msg *channelOpenMsg) (*Channel, error) {
	ch, err := c.chans.newChannel(c.transport, msg.ChanType, c.quirks.has(quirkWindowBug))
	if err != nil {
		c.rejectChanOpen(msg, ResourceShortage, "too many channels")
		return nil, err
	}
	ch.remoteId = msg.PeersId
	ch.remoteWin.add(msg.PeersWindow)
	ch.maxPacket = msg.MaxPacketSize
	ch.state = channelActive

	if err := c.writePacket(marshal(msgChannelOpenConfirm, channelOpenConfirmMsg{
		PeersId:       ch.remoteId,
		MyId:          ch.localId,
		MyWindow:      maxWindowSize,
		MaxPacketSize: defaultMaxPacket,
	})); err != nil {
		c.chans.remove(ch.localId)
		return nil, err
	}
	return ch, nil
}

func (c *ServerConn) rejectChanOpen(msg *channelOpenMsg, reason uint32, text string) {
	c.writePacket(marshal(msgChannelOpenFailure, channelOpenFailureMsg{
		PeersId:  msg.PeersId,
		Reason:   reason,
		Message:  text,
		Language: "en",
	}))
}

// pumpChannelRequests forwards CHANNEL_REQUEST messages (pty-req,
// shell, exec, subsystem, ...) to the channel's own request stream
// so config.NewChannel's handler can answer want_reply without
// racing the connection's main dispatch loop.
func (c *ServerConn) pumpChannelRequests(ch *Channel, out chan<- *ChannelRequest) {
	for raw := range ch.msg {
		if req, ok := raw.(*channelRequestMsg); ok {
			out <- req
		}
	}
	close(out)
}

// Reply answers a channel request's want_reply, RFC 4254 §5.4.
func (c *ServerConn) Reply(ch *Channel, req *ChannelRequest, ok bool) error {
	if !req.WantReply {
		return nil
	}
	if ok {
		return c.writePacket(marshal(msgChannelSuccess, channelRequestSuccessMsg{PeersId: ch.remoteId}))
	}
	return c.writePacket(marshal(msgChannelFailure, channelRequestFailureMsg{PeersId: ch.remoteId}))
}

// handleGlobalRequest answers tcpip-forward/cancel-tcpip-forward
// (§D.3) and refuses anything else it doesn't recognize.
func (c *ServerConn) handleGlobalRequest(msg *globalRequestMsg) {
	switch msg.Type {
	case "tcpip-forward":
		addr, rest, ok := parseString(msg.Data)
		if !ok {
			c.failGlobalRequest(msg)
			return
		}
		port, _, ok := parseUint32(rest)
		if !ok {
			c.failGlobalRequest(msg)
			return
		}
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
		if err != nil {
			c.failGlobalRequest(msg)
			return
		}
		boundPort := l.Addr().(*net.TCPAddr).Port
		bind := net.TCPAddr{IP: net.ParseIP(string(addr)), Port: boundPort}
		c.forwards.add(bind, l)
		go c.acceptForwarded(bind, l)

		if msg.WantReply {
			var reply []byte
			if port == 0 {
				reply = appendU32(nil, uint32(boundPort))
			}
			c.writePacket(marshal(msgRequestSuccess, globalRequestSuccessMsg{Data: reply}))
		}
	case "cancel-tcpip-forward":
		addr, rest, ok := parseString(msg.Data)
		if !ok {
			c.failGlobalRequest(msg)
			return
		}
		port, _, ok := parseUint32(rest)
		if !ok {
			c.failGlobalRequest(msg)
			return
		}
		c.forwards.remove(net.TCPAddr{IP: net.ParseIP(string(addr)), Port: int(port)})
		if msg.WantReply {
			c.writePacket(marshal(msgRequestSuccess, globalRequestSuccessMsg{}))
		}
	default:
		c.failGlobalRequest(msg)
	}
}

func (c *ServerConn) failGlobalRequest(msg *globalRequestMsg) {
	if msg.WantReply {
		c.writePacket(marshal(msgRequestFailure, globalRequestFailureMsg{}))
	}
}

// remoteAddrString returns a throttle key for c's peer, falling back
// to the full RemoteAddr string for non-TCP connections (e.g. tests
// dialing over net.Pipe).
func remoteAddrString(c net.Conn) string {
	if tcp, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	return c.RemoteAddr().String()
}

// acceptForwarded accepts raw TCP connections on a tcpip-forward
// listener and opens one forwarded-tcpip channel per connection back
// to the client (RFC 4254 §7.1's server-initiated open).
func (c *ServerConn) acceptForwarded(bind net.TCPAddr, l net.Listener) {
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		raddr, _ := conn.RemoteAddr().(*net.TCPAddr)

		var extra []byte
		extra = appendString(extra, bind.IP.String())
		extra = appendU32(extra, uint32(bind.Port))
		if raddr != nil {
			extra = appendString(extra, raddr.IP.String())
			extra = appendU32(extra, uint32(raddr.Port))
		} else {
			extra = appendString(extra, "0.0.0.0")
			extra = appendU32(extra, 0)
		}

		ch, err := c.chans.newChannel(c.transport, "forwarded-tcpip", c.quirks.has(quirkWindowBug))
		if err != nil {
			conn.Close()
			continue
		}
		if err := c.writePacket(marshal(msgChannelOpen, channelOpenMsg{
			ChanType:         "forwarded-tcpip",
			PeersId:          ch.localId,
			PeersWindow:      maxWindowSize,
			MaxPacketSize:    defaultMaxPacket,
			TypeSpecificData: extra,
		})); err != nil {
			conn.Close()
			c.chans.remove(ch.localId)
			return
		}
		reply, ok := <-ch.msg
		if !ok {
			conn.Close()
			return
		}
		switch m := reply.(type) {
		case *channelOpenConfirmMsg:
			ch.remoteId = m.MyId
			ch.remoteWin.add(m.MyWindow)
			ch.maxPacket = m.MaxPacketSize
			ch.state = channelActive
			go copyLoop(ch, conn)
		default:
			conn.Close()
			c.chans.remove(ch.localId)
		}
	}
}

// serverForwardList tracks the server's own tcpip-forward listeners,
// keyed by bind address, so cancel-tcpip-forward can tear one down.
type serverForwardList struct {
	mu    sync.Mutex
	table map[string]net.Listener
}

func (s *serverForwardList) add(addr net.TCPAddr, l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		s.table = make(map[string]net.Listener)
	}
	s.table[addr.String()] = l
}

func (s *serverForwardList) remove(addr net.TCPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.table[addr.String()]; ok {
		l.Close()
		delete(s.table, addr.String())
	}
}

func (s *serverForwardList) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.table {
		l.Close()
	}
	s.table = nil
}
