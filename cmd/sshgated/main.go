// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sshgated runs the sshgate SSH v2 transport/connection core
// as a standalone server or test client.
package main

func main() {
	Execute()
}
