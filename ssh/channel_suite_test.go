// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"net"

	check "gopkg.in/check.v1"
)

type ChannelSuite struct {
	hostKey *rsaPrivateKey
}

var _ = check.Suite(&ChannelSuite{})

func (s *ChannelSuite) SetUpSuite(c *check.C) {
	ks := &HandshakeSuite{}
	ks.SetUpSuite(c)
	s.hostKey = ks.hostKey
}

// echoOnSession accepts any "session" channel, answers every request
// affirmatively and echoes back whatever it reads until EOF.
func echoOnSession(conn *ServerConn, ch *Channel, requests <-chan *ChannelRequest) {
	go func() {
		for req := range requests {
			conn.Reply(ch, req, true)
		}
	}()
	io.Copy(ch, ch)
	ch.Close()
}

func (s *ChannelSuite) dialServed(c *check.C) (*ServerConn, *ClientConn) {
	clientSide, serverSide := net.Pipe()

	serverConfig := &ServerConfig{
		HostKeys:   StaticHostKey(s.hostKey),
		Users:      testUserDB{user: "alice", password: "hunter2"},
		NewChannel: echoOnSession,
	}
	clientConfig := &ClientConfig{
		User: "alice",
		Auth: []ClientAuth{ClientAuthPassword{Password: "hunter2"}},
	}

	serverDone := make(chan struct{})
	var server *ServerConn
	var serverErr error
	go func() {
		server, serverErr = Server(serverSide, serverConfig)
		close(serverDone)
	}()

	client, clientErr := Client(clientSide, clientConfig)
	<-serverDone
	c.Assert(serverErr, check.IsNil)
	c.Assert(clientErr, check.IsNil)

	go server.Serve()
	return server, client
}

func (s *ChannelSuite) TestOpenWriteReadClose(c *check.C) {
	server, client := s.dialServed(c)
	defer server.Close()
	defer client.Close()

	ch, err := client.OpenChannel("session", nil)
	c.Assert(err, check.IsNil)

	_, err = ch.Write([]byte("ping"))
	c.Assert(err, check.IsNil)

	buf := make([]byte, 4)
	_, err = io.ReadFull(ch, buf)
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "ping")

	ch.Close()
}

func (s *ChannelSuite) TestChannelRequestRoundTrip(c *check.C) {
	server, client := s.dialServed(c)
	defer server.Close()
	defer client.Close()

	ch, err := client.OpenChannel("session", nil)
	c.Assert(err, check.IsNil)
	defer ch.Close()

	ok, err := ch.SendRequest("shell", true, nil)
	c.Assert(err, check.IsNil)
	c.Check(ok, check.Equals, true)
}

func (s *ChannelSuite) TestMultipleChannelsAreIndependent(c *check.C) {
	server, client := s.dialServed(c)
	defer server.Close()
	defer client.Close()

	chA, err := client.OpenChannel("session", nil)
	c.Assert(err, check.IsNil)
	defer chA.Close()
	chB, err := client.OpenChannel("session", nil)
	c.Assert(err, check.IsNil)
	defer chB.Close()

	_, err = chA.Write([]byte("A"))
	c.Assert(err, check.IsNil)
	_, err = chB.Write([]byte("B"))
	c.Assert(err, check.IsNil)

	bufA := make([]byte, 1)
	bufB := make([]byte, 1)
	_, err = io.ReadFull(chA, bufA)
	c.Assert(err, check.IsNil)
	_, err = io.ReadFull(chB, bufB)
	c.Assert(err, check.IsNil)

	c.Check(string(bufA), check.Equals, "A")
	c.Check(string(bufB), check.Equals, "B")
}
