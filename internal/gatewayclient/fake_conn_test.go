package gatewayclient

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// fakeConn is an in-memory wsConn for lifecycle and correlation tests. Use
// newFakePair to obtain a connected pair: one end handed to a Client via its
// dialFunc, the other driven by the test as the "server" side.
type fakeConn struct {
	mu     sync.Mutex
	toTest chan []byte // frames this side can Read
	toPeer chan []byte // frames Write sends to the peer's toTest
	closed chan struct{}
	once   sync.Once
}

func newFakePair() (client *fakeConn, server *fakeConn) {
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	closed := make(chan struct{})
	client = &fakeConn{toTest: a, toPeer: b, closed: closed}
	server = &fakeConn{toTest: b, toPeer: a, closed: closed}
	return client, server
}

func (f *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data, ok := <-f.toTest:
		if !ok {
			return 0, nil, context.Canceled
		}
		return websocket.MessageText, data, nil
	case <-f.closed:
		return 0, nil, context.Canceled
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case f.toPeer <- cp:
		return nil
	case <-f.closed:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) CloseNow() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// send writes a raw server->client frame directly, bypassing Write's peer
// routing (used by tests driving the "server" side of the pair).
func (f *fakeConn) send(data []byte) {
	select {
	case f.toPeer <- data:
	case <-f.closed:
	}
}

// recv reads one client->server frame (used by tests driving the "server"
// side of the pair).
func (f *fakeConn) recv(ctx context.Context) ([]byte, bool) {
	select {
	case data, ok := <-f.toTest:
		return data, ok
	case <-f.closed:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
