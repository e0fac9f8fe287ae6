package runtime_test

import (
	"sync"
	"sync/atomic"

	"github.com/mrhapile/dotnet-bridge/runtime"
)

// fakeBuffer stands in for a native response allocation.
type fakeBuffer struct {
	data     []byte
	null     bool
	released atomic.Int32
}

func (b *fakeBuffer) Bytes() ([]byte, bool) {
	if b.null {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

func (b *fakeBuffer) Release() {
	b.released.Add(1)
}

// fakeLoader resolves every entry point to handler and records what it
// handed out.
type fakeLoader struct {
	handler func(request []byte) *fakeBuffer
	err     error

	mu         sync.Mutex
	resolved   int
	typeName   string
	methodName string
	requests   [][]byte
	buffers    []*fakeBuffer
}

func (l *fakeLoader) UnmanagedCallersOnly(typeName, methodName string) (runtime.EntryPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved++
	l.typeName = typeName
	l.methodName = methodName
	if l.err != nil {
		return nil, l.err
	}
	return fakeEntry{l}, nil
}

type fakeEntry struct {
	l *fakeLoader
}

func (e fakeEntry) Call(request []byte) runtime.NativeBuffer {
	buf := e.l.handler(request)

	e.l.mu.Lock()
	e.l.requests = append(e.l.requests, append([]byte(nil), request...))
	if buf != nil {
		e.l.buffers = append(e.l.buffers, buf)
	}
	e.l.mu.Unlock()

	if buf == nil {
		return nil
	}
	return buf
}

func echoPong(request []byte) *fakeBuffer {
	if string(request) == "ping" {
		return &fakeBuffer{data: []byte("pong")}
	}
	return &fakeBuffer{data: request}
}
