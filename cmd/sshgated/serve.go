// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aox/sshgate/ssh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an sshgate server accepting connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := readServeConfig()
	if err != nil {
		return err
	}

	hostKey, err := cfg.loadHostKey()
	if err != nil {
		return err
	}

	db, err := newFileUserDB(cfg.Users)
	if err != nil {
		return err
	}

	var throttle *ssh.AuthThrottle
	if cfg.Redis != nil {
		window := time.Duration(cfg.Redis.WindowSecs) * time.Second
		throttle, err = ssh.NewAuthThrottle(ssh.AuthThrottleConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxAttempts: cfg.Redis.MaxAttempts,
			Window:      window,
		})
		if err != nil {
			return err
		}
		defer throttle.Close()
	}

	serverConfig := &ssh.ServerConfig{
		HostKeys: ssh.StaticHostKey(hostKey),
		Users:    db,
		Crypto:   cfg.Crypto.toCryptoConfig(),
		Throttle: throttle,
		Log:      logrus.NewEntry(log),
		NewChannel: func(conn *ssh.ServerConn, ch *ssh.Channel, requests <-chan *ssh.ChannelRequest) {
			handleSession(conn, ch, requests)
		},
	}

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.WithField("addr", cfg.Listen).Info("listening")

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("shutting down")
		l.Close()
	}()

	return ssh.Serve(l, serverConfig, func(conn *ssh.ServerConn) {
		log.WithField("user", conn.User()).Info("session established")
		conn.Serve()
	})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}
