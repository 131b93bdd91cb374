// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aox/sshgate/ssh"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dialCmd = &cobra.Command{
	Use:   "dial host:port",
	Short: "Connect to an sshgate server and run one command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDial(args[0])
	},
}

func init() {
	dialCmd.Flags().String("user", "", "username to authenticate as")
	dialCmd.Flags().String("password", "", "password to authenticate with")
	dialCmd.Flags().String("exec", "", "command to run on the remote side")
	rootCmd.AddCommand(dialCmd)
}

func runDial(addr string) error {
	if err := viper.BindPFlags(dialCmd.Flags()); err != nil {
		return err
	}
	user := viper.GetString("user")
	password := viper.GetString("password")
	execCmd := viper.GetString("exec")
	if user == "" {
		return fmt.Errorf("--user is required")
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.ClientAuth{
			ssh.ClientAuthPassword{Password: password},
		},
		Log: logrus.NewEntry(log),
	}

	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	ch, err := conn.OpenChannel("session", nil)
	if err != nil {
		return fmt.Errorf("opening session channel failed: %w", err)
	}

	if execCmd == "" {
		execCmd = "echo connected"
	}
	if _, err := ch.SendRequest("exec", true, encodeExecPayload(execCmd)); err != nil {
		return fmt.Errorf("exec request failed: %w", err)
	}

	go io.Copy(os.Stderr, ch.Stderr())
	_, err = io.Copy(os.Stdout, ch)
	return err
}

func encodeExecPayload(cmdline string) []byte {
	n := uint32(len(cmdline))
	payload := make([]byte, 4+len(cmdline))
	payload[0] = byte(n >> 24)
	payload[1] = byte(n >> 16)
	payload[2] = byte(n >> 8)
	payload[3] = byte(n)
	copy(payload[4:], cmdline)
	return payload
}
