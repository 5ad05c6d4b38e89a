package main

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/agent/internal/shipper"
)

func TestBuildTarget_MissingCAFileIsNeverDialed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var accepted atomic.Int32
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			c.Close()
		}
	}()

	a := config.AgentConfig{Collector: config.CollectorConfig{
		Host: "127.0.0.1",
		Port: ln.Addr().(*net.TCPAddr).Port,
		TLS:  config.TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"},
	}}

	target, err := buildTarget(a)
	if err == nil {
		t.Fatal("expected tls error for missing CA file")
	}
	if target.TLS != nil {
		t.Fatal("target must not carry a tls config")
	}
	var ce *shipper.ConfigurationError
	if !errors.As(target.Validate(), &ce) {
		t.Fatalf("Validate() = %v, want *ConfigurationError", target.Validate())
	}

	pool := shipper.NewPool(1, target, shipper.Options{RetryBackoff: time.Millisecond})
	defer pool.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	defer pool.Release(c)

	if err := c.Connect(ctx, pool.Target()); !errors.As(err, &ce) {
		t.Fatalf("Connect() = %v, want *ConfigurationError", err)
	}
	if c.State() == shipper.StateConnected {
		t.Fatal("connection must not reach connected state")
	}

	// Give a stray dial time to land before checking.
	time.Sleep(50 * time.Millisecond)
	if n := accepted.Load(); n != 0 {
		t.Fatalf("collector accepted %d connections, want 0", n)
	}
}
