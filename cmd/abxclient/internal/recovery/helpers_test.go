package recovery_test

import (
	"context"
	"io"
	"net"
	"sync"
)

type stallingDialer struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (d *stallingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	d.mu.Lock()
	d.conns = append(d.conns, server)
	d.mu.Unlock()
	go func() {
		var req [2]byte
		io.ReadFull(server, req[:])
	}()
	return client, nil
}

func (d *stallingDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.Close()
	}
}
