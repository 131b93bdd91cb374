// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestClassifyAuthFailure(t *testing.T) {
	cases := []struct {
		name   string
		remain []string
		tried  bool
		want   Kind
	}{
		{"tried and rejected takes priority", []string{"password"}, true, WrongKey},
		{"nothing left to try, nothing tried", nil, false, Permission},
		{"offered methods we have no handler for", []string{"gssapi-with-mic"}, false, NotInited},
	}
	for _, c := range cases {
		err := classifyAuthFailure(c.remain, c.tried)
		se, ok := err.(*Error)
		if !ok {
			t.Errorf("%s: classifyAuthFailure returned %T, want *Error", c.name, err)
			continue
		}
		if se.Kind != c.want {
			t.Errorf("%s: Kind = %v, want %v", c.name, se.Kind, c.want)
		}
	}
}
