package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Needs a live etcd; point MINIJSONRPC_TEST_ETCD at it (e.g. localhost:2379).
func TestEtcdRegisterAndDiscover(t *testing.T) {
	addrs := os.Getenv("MINIJSONRPC_TEST_ETCD")
	if addrs == "" {
		t.Skip("MINIJSONRPC_TEST_ETCD not set")
	}
	reg, err := NewEtcdRegistry(strings.Split(addrs, ","), 2*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ep1 := Endpoint{Addr: "http://127.0.0.1:8001/rpc", Weight: 10, Version: "1.0"}
	ep2 := Endpoint{Addr: "http://127.0.0.1:8002/rpc", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "Arith", ep1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "Arith", ep2, 10); err != nil {
		t.Fatal(err)
	}

	endpoints, err := reg.Discover(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(endpoints))
	}

	if err := reg.Deregister(ctx, "Arith", ep1.Addr); err != nil {
		t.Fatal(err)
	}

	endpoints, err = reg.Discover(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 1 || endpoints[0].Addr != ep2.Addr {
		t.Fatalf("expect only %s after deregister, got %+v", ep2.Addr, endpoints)
	}

	reg.Deregister(ctx, "Arith", ep2.Addr)
}

func TestNewEtcdRegistryRequiresEndpoints(t *testing.T) {
	if _, err := NewEtcdRegistry(nil, time.Second, zerolog.Nop()); err == nil {
		t.Fatal("expect error for empty endpoint list")
	}
}
