package runtime

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/hostfxr"
	"github.com/mrhapile/dotnet-bridge/payload"
)

// Host is an initialized hosting context bound to one managed payload.
// It owns the hostfxr context and the delegate loader for the payload
// assembly. A Host is safe for concurrent use.
type Host struct {
	layout payload.Layout
	lib    *hostfxr.Library
	ctx    *hostfxr.Context
	loader *hostfxr.DelegateLoader
	opts   options
}

// Open creates a hosting context for the payload described by layout.
//
// The function performs the complete boot sequence:
//  1. Validates the runtime configuration document
//  2. Checks that the assembly exists
//  3. Locates and loads the hostfxr library
//  4. Initializes a host context from the runtime configuration
//  5. Obtains a delegate loader scoped to the assembly
//
// If any step fails, everything acquired so far is released and the error
// wraps one of ErrHostNotFound, ErrInvalidConfig or ErrAssemblyLoad.
//
// Example:
//
//	host, err := runtime.Open(payload.NewLayout("./dotnet", payload.DefaultName))
//	if err != nil {
//	    return err
//	}
//	defer host.Close()
//	resp, err := host.Bridge().ProcessRequest(`{"controller":"home","action":"ping"}`)
func Open(layout payload.Layout, opts ...Option) (*Host, error) {
	o := newOptions(opts)
	log := Logger()

	// Step 1: Only the shape of the document is checked here. hostfxr parses
	// it again in step 4 and is the judge of its content
	if _, err := payload.ReadRuntimeConfig(layout.RuntimeConfig); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Step 2: The runtime only opens the assembly when the first entry point
	// is resolved, so a missing file would otherwise surface per request
	if err := layout.Verify(); err != nil {
		if errors.Is(err, payload.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrAssemblyLoad, err)
	}

	// Step 3: Locate hostfxr. The library is never unloaded once opened,
	// because the runtime it starts cannot be shut down either
	libPath, err := hostfxr.Locate(hostfxr.LocateOptions{
		LibraryPath: o.libraryPath,
		DotnetRoot:  o.dotnetRoot,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostNotFound, err)
	}

	lib, err := hostfxr.Load(libPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostNotFound, err)
	}

	log.Info("using runtime config", zap.String("path", layout.RuntimeConfig))

	// Step 4: Initialize the host context. A second Open in the same process
	// joins the runtime started by the first one
	ctx, err := lib.InitializeForRuntimeConfig(layout.RuntimeConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", initErrorKind(err), err)
	}

	// Step 5: Delegate loader for the assembly. The context is useless
	// without it, so release it before reporting the failure
	loader, err := ctx.DelegateLoaderForAssembly(layout.Assembly)
	if err != nil {
		if closeErr := ctx.Close(); closeErr != nil {
			log.Warn("failed to close host context", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("%w: %w", ErrAssemblyLoad, err)
	}

	log.Info(".NET host initialized",
		zap.String("hostfxr", lib.Path()),
		zap.String("assembly", loader.AssemblyPath()),
		zap.String("payload", layout.Name))

	return &Host{
		layout: layout,
		lib:    lib,
		ctx:    ctx,
		loader: loader,
		opts:   o,
	}, nil
}

// initErrorKind sorts a failed context initialization into a configuration
// problem or a broken installation. hostfxr reports both through the same
// call, so only the status code tells them apart.
func initErrorKind(err error) error {
	var se *hostfxr.StatusError
	if errors.As(err, &se) && !se.IsConfigError() {
		return ErrHostNotFound
	}
	return ErrInvalidConfig
}

// Layout returns the payload the host was opened for.
func (h *Host) Layout() payload.Layout {
	return h.layout
}

// Bridge returns a Bridge resolving entry points through this host.
func (h *Host) Bridge() *Bridge {
	return newBridge(hostLoader{h.loader}, h.opts)
}

// Close releases the host context. Bridges obtained from the host fail with
// ErrEntryPoint (wrapping hostfxr.ErrClosed) afterwards. The .NET runtime
// itself cannot be unloaded and stays resident. Close is idempotent.
func (h *Host) Close() error {
	if h.ctx == nil {
		return nil
	}
	return h.ctx.Close()
}

// hostLoader adapts hostfxr types to the Bridge interfaces.
type hostLoader struct {
	loader *hostfxr.DelegateLoader
}

func (l hostLoader) UnmanagedCallersOnly(typeName, methodName string) (EntryPoint, error) {
	fn, err := l.loader.UnmanagedCallersOnly(typeName, methodName)
	if err != nil {
		return nil, err
	}
	return hostEntry{fn}, nil
}

type hostEntry struct {
	fn *hostfxr.Function
}

func (e hostEntry) Call(request []byte) NativeBuffer {
	return e.fn.Call(request)
}
