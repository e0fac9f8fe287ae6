package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/payload"
)

// Lazy builds a Bridge on first use. Concurrent first callers block until
// the single initializer finishes; its result, error included, is kept for
// the lifetime of the Lazy.
type Lazy struct {
	once   sync.Once
	open   func() (*Bridge, error)
	bridge *Bridge
	err    error
}

// NewLazy creates a Lazy that calls open at most once.
func NewLazy(open func() (*Bridge, error)) *Lazy {
	return &Lazy{open: open}
}

// Get returns the Bridge, initializing it on the first call.
func (l *Lazy) Get() (*Bridge, error) {
	l.once.Do(func() {
		l.bridge, l.err = l.open()
	})
	return l.bridge, l.err
}

var defaultBridge = NewLazy(openDefault)

// fatal terminates the process. zap exits after writing a fatal entry even
// when the logger is a no-op.
var fatal = func(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
}

// openDefault boots the host for the payload in the "dotnet" directory next
// to the executable. The host is never closed.
func openDefault() (*Bridge, error) {
	dir, err := payload.NewExecutableStore(payload.DefaultSubdir).Dir()
	if err != nil {
		return nil, err
	}
	host, err := Open(payload.NewLayout(dir, payload.DefaultName))
	if err != nil {
		return nil, err
	}
	return host.Bridge(), nil
}

// Default returns the process-wide Bridge, booting the .NET host on first use.
// A failed boot is permanent.
func Default() (*Bridge, error) {
	return defaultBridge.Get()
}

// ProcessRequest forwards request through the process-wide Bridge.
//
// Any failure, at boot or while resolving the entry point, terminates the
// process. Callers that need to recover should use Default or Open and
// handle the returned errors.
func ProcessRequest(request string) string {
	b, err := Default()
	if err != nil {
		fatal("failed to initialize .NET host", zap.Error(err))
		return ""
	}
	resp, err := b.ProcessRequest(request)
	if err != nil {
		fatal("failed to process request", zap.Error(err))
		return ""
	}
	return resp
}
