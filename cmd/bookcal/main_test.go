package main

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestLocalAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		":8080":          "127.0.0.1:8080",
		"0.0.0.0:9000":   "127.0.0.1:9000",
		"127.0.0.1:8080": "127.0.0.1:8080",
		"calendar:80":    "calendar:80",
	}
	for in, want := range tests {
		if got := localAddr(in); got != want {
			t.Errorf("localAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWaitForListener(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if err := waitForListener(context.Background(), addr, time.Second); err != nil {
		t.Fatalf("open listener: %v", err)
	}

	ln.Close()
	if err := waitForListener(context.Background(), addr, 200*time.Millisecond); err == nil {
		t.Fatal("expected error once the listener is closed")
	}
}
