// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// defaultLogger is shared by every ClientConn/ServerConn that isn't
// given an explicit *logrus.Entry, so a program that never touches
// logging still gets structured log records (Info level and above,
// written to stderr until SetOutput redirects them) instead of the
// teacher's scattered fmt.Printf debug lines.
var (
	defaultLoggerOnce sync.Once
	defaultLoggerBase *logrus.Logger
)

func defaultLogger() *logrus.Entry {
	defaultLoggerOnce.Do(func() {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.InfoLevel)
		defaultLoggerBase = l
	})
	return defaultLoggerBase.WithField("component", "ssh")
}

// SetOutput redirects the package default logger, e.g. to silence it
// in tests with io.Discard.
func SetOutput(w io.Writer) {
	defaultLogger() // ensure initialized
	defaultLoggerBase.SetOutput(w)
}
