// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are package-global Prometheus collectors, registered once
// against the default registry; a program that never scrapes them
// pays only the counter/gauge bookkeeping cost.
var (
	handshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sshgate",
		Name:      "handshakes_total",
		Help:      "Completed key exchanges, by role and outcome.",
	}, []string{"role", "outcome"})

	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sshgate",
		Name:      "auth_attempts_total",
		Help:      "USERAUTH_REQUEST attempts, by method and outcome.",
	}, []string{"method", "outcome"})

	channelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sshgate",
		Name:      "channels_active",
		Help:      "Currently open multiplexed channels across all connections.",
	})

	channelBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sshgate",
		Name:      "channel_bytes_total",
		Help:      "Bytes moved over channel data messages, by direction.",
	}, []string{"direction"})

	rekeysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sshgate",
		Name:      "rekeys_total",
		Help:      "Mid-session KEXINIT renegotiations completed.",
	})
)
