// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aox/sshgate/ssh"
)

// fileUserDB answers ssh.UserDB callbacks from the users section of
// the config file. It is the simplest possible backing store; a real
// deployment would swap this for one backed by an identity provider
// without touching the ssh package.
type fileUserDB struct {
	users map[string]UserFileConfig
	keys  map[string][]ssh.PublicKey
}

func newFileUserDB(users map[string]UserFileConfig) (*fileUserDB, error) {
	db := &fileUserDB{
		users: users,
		keys:  make(map[string][]ssh.PublicKey),
	}
	for name, u := range users {
		for _, line := range u.AuthorizedKeys {
			key, err := parseAuthorizedKeyLine(line)
			if err != nil {
				return nil, fmt.Errorf("user %q: %w", name, err)
			}
			db.keys[name] = append(db.keys[name], key)
		}
	}
	return db, nil
}

// parseAuthorizedKeyLine accepts the standard "algo base64blob
// comment" authorized_keys line shape and decodes the middle field.
func parseAuthorizedKeyLine(line string) (ssh.PublicKey, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed authorized key line %q", line)
	}
	blob, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		return nil, fmt.Errorf("decoding authorized key: %w", err)
	}
	key, ok := ssh.ParsePublicKey(blob)
	if !ok {
		return nil, fmt.Errorf("unparseable authorized key %q", line)
	}
	return key, nil
}

func (db *fileUserDB) Password(user, password string) (bool, error) {
	u, ok := db.users[user]
	if !ok || u.Password == "" {
		return false, nil
	}
	return u.Password == password, nil
}

func (db *fileUserDB) PublicKey(user string, key ssh.PublicKey) (bool, error) {
	blob := ssh.MarshalPublicKey(key)
	for _, authorized := range db.keys[user] {
		if string(ssh.MarshalPublicKey(authorized)) == string(blob) {
			return true, nil
		}
	}
	return false, nil
}

// KeyboardInteractive is unsupported by fileUserDB; the server still
// advertises the method (RFC 4252 §5.2 allows offering a method that
// always rejects) but every attempt fails.
func (db *fileUserDB) KeyboardInteractive(user string, answers []string) (bool, []string, []bool, string, error) {
	return false, nil, nil, "", nil
}
