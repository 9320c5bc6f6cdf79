package main

import (
	"testing"

	"github.com/omochice/openim-session/internal/config"
	"github.com/omochice/openim-session/internal/transport/gobwas"
	"github.com/omochice/openim-session/internal/transport/gorilla"
)

func TestNewDialer(t *testing.T) {
	cfg := config.Default()

	if _, ok := newDialer(cfg).(*gorilla.Dialer); !ok {
		t.Errorf("default transport should be gorilla")
	}

	cfg.Transport = config.TransportGobwas
	if _, ok := newDialer(cfg).(*gobwas.Dialer); !ok {
		t.Errorf("gobwas transport not selected")
	}
}
