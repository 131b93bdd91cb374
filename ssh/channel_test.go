// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestChanListCapsActiveChannels(t *testing.T) {
	var list chanList
	for i := 0; i < maxActiveChannels; i++ {
		if _, err := list.newChannel(nil, "session", false); err != nil {
			t.Fatalf("channel %d: unexpected error: %v", i, err)
		}
	}
	if _, err := list.newChannel(nil, "session", false); err == nil {
		t.Fatal("expected an error opening beyond maxActiveChannels")
	}
}

func TestChanListReusesRemovedSlots(t *testing.T) {
	var list chanList
	first, err := list.newChannel(nil, "session", false)
	if err != nil {
		t.Fatalf("newChannel: %v", err)
	}
	list.remove(first.localId)

	second, err := list.newChannel(nil, "session", false)
	if err != nil {
		t.Fatalf("newChannel after remove: %v", err)
	}
	if second.localId != first.localId {
		t.Errorf("localId = %d, want reused id %d", second.localId, first.localId)
	}
}

func TestChanReaderReadsThenEOFs(t *testing.T) {
	r := newChanReader()
	r.write([]byte("hello"))
	r.eof()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read = %q, want %q", buf[:n], "hello")
	}

	if _, err := r.Read(buf); err == nil {
		t.Fatal("expected io.EOF once buffered data is drained and the stream is closed")
	}
}

func TestAccountIncomingWatermark(t *testing.T) {
	ch := newChannel(nil, 0, "session", false)
	if adjust, send := ch.accountIncoming(defaultMaxPacket); send {
		t.Errorf("accountIncoming below watermark unexpectedly asked to send (adjust=%d)", adjust)
	}
	adjust, send := ch.accountIncoming(defaultMaxPacket * 2)
	if !send {
		t.Fatal("accountIncoming at watermark should ask to send a window adjust")
	}
	if adjust != defaultMaxPacket*3 {
		t.Errorf("adjust = %d, want %d", adjust, defaultMaxPacket*3)
	}
}

func TestAccountIncomingWindowBugAlwaysSends(t *testing.T) {
	ch := newChannel(nil, 0, "session", true)
	adjust, send := ch.accountIncoming(1)
	if !send {
		t.Fatal("windowBug peers should trigger a send on every byte accounted")
	}
	if adjust != 1 {
		t.Errorf("adjust = %d, want 1", adjust)
	}
}
