// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"

	check "gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type HandshakeSuite struct {
	hostKey *rsaPrivateKey
}

var _ = check.Suite(&HandshakeSuite{})

func (s *HandshakeSuite) SetUpSuite(c *check.C) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, check.IsNil)
	s.hostKey = &rsaPrivateKey{key}
}

// testUserDB accepts a single fixed user/password pair and rejects
// every other credential.
type testUserDB struct {
	user, password string
}

func (db testUserDB) Password(user, password string) (bool, error) {
	return user == db.user && password == db.password, nil
}

func (db testUserDB) PublicKey(user string, key PublicKey) (bool, error) {
	return false, nil
}

func (db testUserDB) KeyboardInteractive(user string, answers []string) (bool, []string, []bool, string, error) {
	return false, nil, nil, "", nil
}

func (s *HandshakeSuite) dialPair(c *check.C, serverConfig *ServerConfig, clientConfig *ClientConfig) (*ServerConn, *ClientConn) {
	clientSide, serverSide := net.Pipe()

	serverDone := make(chan struct{})
	var serverConn *ServerConn
	var serverErr error
	go func() {
		serverConn, serverErr = Server(serverSide, serverConfig)
		close(serverDone)
	}()

	clientConn, clientErr := Client(clientSide, clientConfig)
	<-serverDone

	c.Assert(serverErr, check.IsNil)
	c.Assert(clientErr, check.IsNil)
	return serverConn, clientConn
}

func (s *HandshakeSuite) TestFullHandshakeAndPasswordAuth(c *check.C) {
	serverConfig := &ServerConfig{
		HostKeys: StaticHostKey(s.hostKey),
		Users:    testUserDB{user: "alice", password: "hunter2"},
	}
	clientConfig := &ClientConfig{
		User: "alice",
		Auth: []ClientAuth{ClientAuthPassword{Password: "hunter2"}},
	}

	server, client := s.dialPair(c, serverConfig, clientConfig)
	defer server.Close()
	defer client.Close()

	c.Check(server.User(), check.Equals, "alice")
	c.Check(client.sessionID, check.DeepEquals, server.sessionID)
	c.Check(len(server.sessionID) > 0, check.Equals, true)
}

func (s *HandshakeSuite) TestWrongPasswordIsRejected(c *check.C) {
	clientSide, serverSide := net.Pipe()
	serverConfig := &ServerConfig{
		HostKeys: StaticHostKey(s.hostKey),
		Users:    testUserDB{user: "alice", password: "hunter2"},
	}
	clientConfig := &ClientConfig{
		User: "alice",
		Auth: []ClientAuth{ClientAuthPassword{Password: "wrong"}},
	}

	serverDone := make(chan error, 1)
	go func() {
		_, err := Server(serverSide, serverConfig)
		serverDone <- err
	}()

	_, clientErr := Client(clientSide, clientConfig)
	c.Check(clientErr, check.NotNil)
	c.Check(<-serverDone, check.NotNil)
}

func (s *HandshakeSuite) TestHostKeyMismatchRejectedByChecker(c *check.C) {
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, check.IsNil)
	other := &rsaPrivateKey{otherKey}

	clientSide, serverSide := net.Pipe()
	serverConfig := &ServerConfig{
		HostKeys: StaticHostKey(s.hostKey),
		Users:    testUserDB{user: "alice", password: "hunter2"},
	}
	clientConfig := &ClientConfig{
		User:           "alice",
		Auth:           []ClientAuth{ClientAuthPassword{Password: "hunter2"}},
		HostKeyChecker: FixedHostKey(other),
	}

	serverDone := make(chan error, 1)
	go func() {
		_, err := Server(serverSide, serverConfig)
		serverDone <- err
	}()

	_, clientErr := Client(clientSide, clientConfig)
	c.Check(clientErr, check.NotNil)
	<-serverDone
}
