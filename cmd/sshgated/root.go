// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	debug   bool
	log     = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "sshgated",
	Short: "SSH v2 transport/connection gateway",
	Long: `sshgated runs the sshgate SSH transport as either a server
accepting connections (serve) or a client dialing one out (dial),
driven by a viper configuration file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (yaml/json/toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// loadConfig binds the persistent flags and, if --config was given,
// reads the named file into viper (same config flag plumbing as
// kgiusti-go-fdo-server's rootCmdLoadConfig).
func loadConfig() error {
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	if viper.GetBool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
