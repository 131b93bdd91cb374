// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// clientVersion is the default identification string the client
// sends, RFC 4253 §4.2.
var clientVersion = []byte("SSH-2.0-sshgate_1.0")

// HostKeyChecker validates a server's host key during the handshake.
// Check is called once per connection, after the signature over the
// exchange hash has already been verified cryptographically; it
// exists purely to bind the now-proven key to an identity (known
// hosts file, pinned fingerprint, TOFU cache, ...).
type HostKeyChecker interface {
	Check(dialAddress string, remote net.Addr, hostKeyAlgo string, hostKey []byte) error
}

// FixedHostKey returns a HostKeyChecker that accepts only the exact
// host key blob given (constant-time compare via Fingerprint's
// bytesEqual). Useful for pinned single-host deployments.
func FixedHostKey(key PublicKey) HostKeyChecker {
	return fixedHostKey{blob: MarshalPublicKey(key)}
}

type fixedHostKey struct{ blob []byte }

func (f fixedHostKey) Check(_ string, _ net.Addr, _ string, hostKey []byte) error {
	if !bytesEqual(f.blob, hostKey) {
		return newError(WrongKey, "host key does not match pinned key")
	}
	return nil
}

// ClientConfig configures a client connection.
type ClientConfig struct {
	// Rand supplies entropy for key exchange; crypto/rand.Reader if nil.
	Rand io.Reader

	// User is the username to authenticate as.
	User string

	// Auth lists authentication methods tried in order; the first
	// to succeed wins (RFC 4252 §5's partial-success chaining).
	Auth []ClientAuth

	// HostKeyChecker validates the server's host key; nil accepts any.
	HostKeyChecker HostKeyChecker

	Crypto CryptoConfig

	// ClientVersion overrides the identification string sent.
	ClientVersion string

	// Log receives structured handshake/auth events; the package
	// default logger (Info level, stderr; see SetOutput) is used if nil.
	Log *logrus.Entry
}

func (c *ClientConfig) rand() io.Reader {
	if c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}

func (c *ClientConfig) log() *logrus.Entry {
	if c.Log == nil {
		return defaultLogger()
	}
	return c.Log
}

// ClientConn is the client side of one SSH connection: transport,
// negotiated quirks, the authenticated session id, and the channel
// and forwarding tables layered on top.
type ClientConn struct {
	*transport
	config *ClientConfig

	chans    chanList
	forwards forwardList
	globalRequest

	dialAddress        string
	serverVersion      string
	clientVersionBytes []byte
	serverVersionBytes []byte
	sessionID          []byte
	quirks             quirk
	user               string

	log *logrus.Entry
}

type globalRequest struct {
	sync.Mutex
	response chan interface{}
}

// Client wraps an already-connected net.Conn with the SSH protocol,
// performing the handshake and authentication before returning.
func Client(c net.Conn, config *ClientConfig) (*ClientConn, error) {
	return clientWithAddress(c, "", config)
}

// Dial connects to addr and then performs Client's handshake.
func Dial(network, addr string, config *ClientConfig) (*ClientConn, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, wrapError(NotAvailable, "dial failed", err)
	}
	return clientWithAddress(conn, addr, config)
}

func clientWithAddress(c net.Conn, addr string, config *ClientConfig) (*ClientConn, error) {
	conn := &ClientConn{
		transport:     newTransport(c, config.rand()),
		config:        config,
		globalRequest: globalRequest{response: make(chan interface{}, 1)},
		dialAddress:   addr,
		log:           config.log(),
	}
	if err := conn.handshake(); err != nil {
		handshakesTotal.WithLabelValues("client", "fail").Inc()
		conn.Close()
		return nil, err
	}
	if err := conn.authenticate(); err != nil {
		conn.Close()
		return nil, err
	}
	go conn.mainLoop()
	return conn, nil
}

// handshake performs version exchange, KEXINIT negotiation, key
// exchange and NEWKEYS, per RFC 4253 §7.
func (c *ClientConn) handshake() error {
	version := []byte(c.config.ClientVersion)
	if len(version) == 0 {
		version = clientVersion
	}
	c.clientVersionBytes = version
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
	c.serverVersionBytes = peerVersion
	c.serverVersion = string(peerVersion)
	c.quirks = detectQuirks(peerVersion)
	c.transport.quirks = c.quirks

	peerPacket, err := c.readPacket()
	if err != nil {
		return err
	}

	if err := c.performKex(peerPacket, true); err != nil {
		return err
	}

	c.log.WithField("server", c.serverVersion).Debug("key exchange complete")
	handshakesTotal.WithLabelValues("client", "ok").Inc()
	return nil
}

// performKex runs one KEXINIT negotiation + key exchange + NEWKEYS
// round over the already-versioned transport; first=true latches
// sessionID from this exchange's hash (§8), first=false is a
// mid-session rekey (§9) that reuses the original sessionID in the
// new key schedule while leaving it untouched for future auth-data
// signing and re-exchanges.
func (c *ClientConn) performKex(peerPacket []byte, first bool) error {
	var magics handshakeMagics
	magics.clientVersion = c.clientVersionBytes
	magics.serverVersion = c.serverVersionBytes
	magics.serverKexInit = peerPacket

	var peerKexInit kexInitMsg
	if err := unmarshal(&peerKexInit, peerPacket, msgKexInit); err != nil {
		return err
	}

	localKexInit := kexInitMsg{
		KexAlgos:                c.config.Crypto.kexes(),
		ServerHostKeyAlgos:      supportedHostKeyAlgos,
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
	magics.clientKexInit = localPacket
	if err := c.writePacket(localPacket); err != nil {
		return err
	}

	n, err := negotiateAsClient(&localKexInit, &peerKexInit)
	if err != nil {
		return err
	}
	c.transport.writer.cipherAlgo = n.cipherCtoS
	c.transport.writer.macAlgo = n.macCtoS
	c.transport.reader.cipherAlgo = n.cipherStoC
	c.transport.reader.macAlgo = n.macStoC

	if n.discardGuess {
		if _, err := c.readPacket(); err != nil {
			return err
		}
	}

	result, err := c.runKex(n.kexAlgo, &magics)
	if err != nil {
		return err
	}

	if err := verifyHostKeySignature(n.hostKeyAlgo, result.HostKey, result.H, result.Signature, c.quirks); err != nil {
		return err
	}
	if first {
		if checker := c.config.HostKeyChecker; checker != nil {
			if err := checker.Check(c.dialAddress, c.RemoteAddr(), n.hostKeyAlgo, result.HostKey); err != nil {
				return err
			}
		}
		c.sessionID = result.H
	}

	if err := c.writePacket([]byte{msgNewKeys}); err != nil {
		return err
	}
	if err := c.transport.writer.setupKeys(clientKeys, false, result.K, result.H, c.sessionID, result.Hash, c.quirks); err != nil {
		return err
	}
	packet, err := c.readPacket()
	if err != nil {
		return err
	}
	if len(packet) == 0 || packet[0] != msgNewKeys {
		return UnexpectedMessageError{msgNewKeys, packet[0]}
	}
	if err := c.transport.reader.setupKeys(serverKeys, true, result.K, result.H, c.sessionID, result.Hash, c.quirks); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{"kex": n.kexAlgo, "cipher": n.cipherCtoS, "rekey": !first}).Debug("key exchange complete")
	if !first {
		rekeysTotal.Inc()
	}
	return nil
}

func (c *ClientConn) runKex(kexAlgo string, magics *handshakeMagics) (*kexResult, error) {
	rnd := c.config.rand()
	if group, ok := fixedGroup(kexAlgo); ok {
		return clientKexDH(c.transport, rnd, crypto.SHA1, group, magics, "", c.quirks)
	}
	if kexAlgo == kexAlgoDHGEXSHA1 {
		return clientKexDHGEX(c.transport, rnd, crypto.SHA1, &c.config.Crypto, magics, c.quirks)
	}
	return nil, newError(NotAvailable, "unsupported key exchange algorithm "+kexAlgo)
}

func readVersion(r io.Reader) ([]byte, error) {
	var version []byte
	var buf [1]byte
	for {
		n, err := r.Read(buf[:])
		if n == 0 && err != nil {
			return nil, wrapError(Read, "reading version string failed", err)
		}
		if n == 0 {
			continue
		}
		if buf[0] == '\n' {
			if len(version) > 0 && version[len(version)-1] == '\r' {
				version = version[:len(version)-1]
			}
			return version, nil
		}
		version = append(version, buf[0])
		if len(version) > 255 {
			return nil, newError(BadData, "version string too long")
		}
	}
}

// authenticate runs the client Auth Engine: a "none" probe learns
// the server's acceptable methods, then config.Auth is tried in
// order, honoring RFC 4252 §5's partial-success chaining.
func (c *ClientConn) authenticate() error {
	if err := c.writePacket(marshal(msgServiceRequest, serviceRequestMsg{Service: serviceUserAuth})); err != nil {
		return err
	}
	packet, err := c.readPacket()
	if err != nil {
		return err
	}
	var accept serviceAcceptMsg
	if err := unmarshal(&accept, packet, msgServiceAccept); err != nil {
		return err
	}

	ok, allowed, err := (ClientAuthNone{}).auth(c.sessionID, c.config.User, c.transport, c.config.rand())
	if err != nil {
		return err
	}
	if ok {
		c.user = c.config.User
		return nil
	}

	if len(c.config.Auth) == 0 {
		return newError(NotInited, "no authentication methods configured")
	}

	tried := false
	for _, method := range c.config.Auth {
		if !methodAllowed(method.method(), allowed) {
			continue
		}
		tried = true
		ok, next, err := method.auth(c.sessionID, c.config.User, c.transport, c.config.rand())
		if err != nil {
			return err
		}
		if ok {
			authAttemptsTotal.WithLabelValues(method.method(), "ok").Inc()
			c.user = c.config.User
			return nil
		}
		authAttemptsTotal.WithLabelValues(method.method(), "fail").Inc()
		allowed = next
	}
	return classifyAuthFailure(allowed, tried)
}

func methodAllowed(method string, allowed []string) bool {
	if allowed == nil {
		return true
	}
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

// classifyAuthFailure distinguishes the three caller-visible failure
// shapes of §4.4: exhaustion after at least one configured method was
// actually tried and rejected by the server is WrongKey; when nothing
// was tried and the server still offers methods ("server wants X, we
// have no X") it is NotInited; when nothing was tried and the server
// offers no methods at all it is Permission.
func classifyAuthFailure(remainingMethods []string, tried bool) error {
	if tried {
		return newError(WrongKey, "server rejected all attempted credentials")
	}
	if len(remainingMethods) == 0 {
		return newError(Permission, "server rejected all authentication attempts")
	}
	return newError(NotInited, fmt.Sprintf("no configured method for server-offered methods %v", remainingMethods))
}

// mainLoop reads incoming packets and routes them to channels, the
// global request waiter, or discards administrative no-ops.
func (c *ClientConn) mainLoop() {
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
				c.log.WithError(err).Debug("ignoring unexpected message")
				continue
			}
			return
		}
		if !c.dispatch(decoded) {
			return
		}
	}
}

// routeChannelData handles the two high-volume message types
// (CHANNEL_DATA/EXTENDED_DATA) directly off the raw packet to avoid
// a reflection round-trip per byte chunk, mirroring the teacher's
// inline fast path.
func (c *ClientConn) routeChannelData(packet []byte) bool {
	switch packet[0] {
	case msgChannelData:
		var msg channelDataMsg
		if unmarshal(&msg, packet, msgChannelData) != nil {
			return true
		}
		ch, ok := c.chans.get(msg.PeersId)
		if !ok {
			return true
		}
		if adjust, send := ch.accountIncoming(uint32(len(msg.Rest))); send {
			c.writePacket(marshal(msgChannelWindowAdjust, channelWindowAdjustMsg{PeersId: ch.remoteId, AdditionalBytes: adjust}))
		}
		channelBytesTotal.WithLabelValues("in").Add(float64(len(msg.Rest)))
		ch.stdout.write(msg.Rest)
		return true
	case msgChannelExtendedData:
		var msg channelExtendedDataMsg
		if unmarshal(&msg, packet, msgChannelExtendedData) != nil {
			return true
		}
		ch, ok := c.chans.get(msg.PeersId)
		if !ok {
			return true
		}
		if adjust, send := ch.accountIncoming(uint32(len(msg.Rest))); send {
			c.writePacket(marshal(msgChannelWindowAdjust, channelWindowAdjustMsg{PeersId: ch.remoteId, AdditionalBytes: adjust}))
		}
		if msg.DataType == chanExtTypeStderr {
			channelBytesTotal.WithLabelValues("in").Add(float64(len(msg.Rest)))
			ch.stderr.write(msg.Rest)
		}
		return true
	}
	return false
}

// dispatch handles every decoded message type that isn't raw channel
// data; it returns false when the connection should be torn down.
func (c *ClientConn) dispatch(decoded interface{}) bool {
	switch msg := decoded.(type) {
	case *channelOpenMsg:
		c.handleChanOpen(msg)
	case *channelOpenConfirmMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.msg <- msg
		}
	case *channelOpenFailureMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.msg <- msg
		}
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
	case *channelRequestSuccessMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.msg <- msg
		}
	case *channelRequestFailureMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.msg <- msg
		}
	case *channelRequestMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.msg <- msg
		}
	case *windowAdjustMsg:
		if ch, ok := c.chans.get(msg.PeersId); ok {
			ch.handleWindowAdjust(msg.AdditionalBytes)
		}
	case *globalRequestMsg:
		if msg.WantReply {
			c.writePacket(marshal(msgRequestFailure, globalRequestFailureMsg{}))
		}
	case *globalRequestSuccessMsg:
		select {
		case c.globalRequest.response <- msg:
		default:
		}
	case *globalRequestFailureMsg:
		select {
		case c.globalRequest.response <- msg:
		default:
		}
	case *disconnectMsg:
		return false
	case *debugMsg, *ignoreMsg, *unimplementedMsg:
		// no-ops, RFC 4253 §11.2-3.
	default:
		c.log.WithField("type", fmt.Sprintf("%T", msg)).Debug("unhandled message")
	}
	return true
}

// handleChanOpen services server-initiated channel opens; the only
// type a client ever needs to accept is forwarded-tcpip (§D.3).
func (c *ClientConn) handleChanOpen(msg *channelOpenMsg) {
	if msg.MaxPacketSize < minPacketLength || msg.MaxPacketSize > 1<<31 {
		c.sendConnectionFailed(msg.PeersId)
		return
	}
	if msg.ChanType != "forwarded-tcpip" {
		c.writePacket(marshal(msgChannelOpenFailure, channelOpenFailureMsg{
			PeersId:  msg.PeersId,
			Reason:   UnknownChannelType,
			Message:  "unknown channel type: " + msg.ChanType,
			Language: "en",
		}))
		return
	}

	laddr, rest, ok := parseTCPAddr(msg.TypeSpecificData)
	if !ok {
		c.sendConnectionFailed(msg.PeersId)
		return
	}
	sink, ok := c.forwards.lookup(*laddr)
	if !ok {
		c.log.WithField("addr", laddr).Warn("no listener registered for forwarded-tcpip")
		c.sendConnectionFailed(msg.PeersId)
		return
	}
	raddr, _, ok := parseTCPAddr(rest)
	if !ok {
		c.sendConnectionFailed(msg.PeersId)
		return
	}

	ch, err := c.chans.newChannel(c.transport, msg.ChanType, c.quirks.has(quirkWindowBug))
	if err != nil {
		c.sendConnectionFailed(msg.PeersId)
		return
	}
	ch.remoteId = msg.PeersId
	ch.remoteWin.add(msg.PeersWindow)
	ch.maxPacket = msg.MaxPacketSize

	if err := c.writePacket(marshal(msgChannelOpenConfirm, channelOpenConfirmMsg{
		PeersId:       ch.remoteId,
		MyId:          ch.localId,
		MyWindow:      maxWindowSize,
		MaxPacketSize: defaultMaxPacket,
	})); err != nil {
		return
	}
	sink <- forward{channel: ch, addr: raddr}
}

func (c *ClientConn) sendConnectionFailed(remoteId uint32) {
	c.writePacket(marshal(msgChannelOpenFailure, channelOpenFailureMsg{
		PeersId:  remoteId,
		Reason:   ConnectionFailed,
		Message:  "invalid request",
		Language: "en",
	}))
}

// sendGlobalRequest issues a global request and blocks for the
// matching reply, RFC 4254 §4.
func (c *ClientConn) sendGlobalRequest(reqType string, wantReply bool, data []byte) (*globalRequestSuccessMsg, error) {
	c.globalRequest.Lock()
	defer c.globalRequest.Unlock()
	if err := c.writePacket(marshal(msgGlobalRequest, globalRequestMsg{Type: reqType, WantReply: wantReply, Data: data})); err != nil {
		return nil, err
	}
	if !wantReply {
		return nil, nil
	}
	reply := <-c.globalRequest.response
	if r, ok := reply.(*globalRequestSuccessMsg); ok {
		return r, nil
	}
	return nil, newError(Permission, "global request denied")
}

// OpenChannel opens a new logical channel of the given type, RFC
// 4254 §5.1, and blocks for OPEN_CONFIRMATION/OPEN_FAILURE.
func (c *ClientConn) OpenChannel(chanType string, extra []byte) (*Channel, error) {
	ch, err := c.chans.newChannel(c.transport, chanType, c.quirks.has(quirkWindowBug))
	if err != nil {
		return nil, err
	}

	if err := c.writePacket(marshal(msgChannelOpen, channelOpenMsg{
		ChanType:         chanType,
		PeersId:          ch.localId,
		PeersWindow:      maxWindowSize,
		MaxPacketSize:    defaultMaxPacket,
		TypeSpecificData: extra,
	})); err != nil {
		c.chans.remove(ch.localId)
		return nil, err
	}

	reply, ok := <-ch.msg
	if !ok {
		return nil, newError(Complete, "connection closed while opening channel")
	}
	switch m := reply.(type) {
	case *channelOpenConfirmMsg:
		ch.remoteId = m.MyId
		ch.remoteWin.add(m.MyWindow)
		ch.maxPacket = m.MaxPacketSize
		ch.state = channelActive
		return ch, nil
	case *channelOpenFailureMsg:
		c.chans.remove(ch.localId)
		return nil, newError(Permission, m.Message)
	}
	return nil, newError(BadData, "unexpected reply to channel open")
}

// parseTCPAddr parses `host ‖ port` into a *net.TCPAddr, as used by
// both direct-tcpip and forwarded-tcpip channel headers (§4.5).
func parseTCPAddr(b []byte) (*net.TCPAddr, []byte, bool) {
	host, b, ok := parseString(b)
	if !ok {
		return nil, b, false
	}
	port, b, ok := parseUint32(b)
	if !ok {
		return nil, b, false
	}
	ip := net.ParseIP(string(host))
	if ip == nil {
		return &net.TCPAddr{IP: net.IPv4zero, Port: int(port)}, b, true
	}
	return &net.TCPAddr{IP: ip, Port: int(port)}, b, true
}
