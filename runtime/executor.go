package runtime

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/mrhapile/dotnet-bridge/hostfxr"
)

// Fixed identifiers of the managed entry point.
const (
	DefaultTypeName   = "DotNetBridge.Bridge, DotNetBridge"
	DefaultMethodName = "ProcessRequest"
)

var (
	// ErrHostNotFound is returned when the hostfxr library cannot be located
	// or loaded.
	ErrHostNotFound = hostfxr.ErrHostNotFound

	// ErrInvalidConfig is returned when the runtime configuration is missing
	// or malformed, or hostfxr refuses it.
	ErrInvalidConfig = errors.New("invalid runtime configuration")

	// ErrAssemblyLoad is returned when the payload assembly cannot be loaded.
	ErrAssemblyLoad = errors.New("failed to load assembly")

	// ErrEntryPoint is returned when the entry point cannot be resolved.
	ErrEntryPoint = errors.New("failed to resolve entry point")

	// ErrRequestTooLarge is returned for requests whose byte length does not
	// fit the int32 length parameter of the entry point.
	ErrRequestTooLarge = errors.New("request exceeds int32 length")

	// ErrNullResponse is returned when the entry point returns NULL.
	ErrNullResponse = errors.New("entry point returned a NULL response")
)

// NativeBuffer is a NUL-terminated response allocated on the native side.
// Ownership passes to the receiver, which must call Release exactly once.
type NativeBuffer interface {
	// Bytes copies the content up to the terminator. ok is false for NULL.
	Bytes() (data []byte, ok bool)
	Release()
}

// EntryPoint is a resolved managed method with the native signature
// char* (const uint8_t* request, int32_t length).
type EntryPoint interface {
	Call(request []byte) NativeBuffer
}

// DelegateLoader resolves [UnmanagedCallersOnly] methods of an assembly.
type DelegateLoader interface {
	UnmanagedCallersOnly(typeName, methodName string) (EntryPoint, error)
}

// Bridge forwards opaque request strings to the managed entry point.
// It holds no mutable state and is safe for concurrent use as long as the
// managed method is.
type Bridge struct {
	loader     DelegateLoader
	typeName   string
	methodName string
}

// New creates a Bridge resolving its entry point through loader.
func New(loader DelegateLoader, opts ...Option) *Bridge {
	return newBridge(loader, newOptions(opts))
}

func newBridge(loader DelegateLoader, o options) *Bridge {
	return &Bridge{
		loader:     loader,
		typeName:   o.typeName,
		methodName: o.methodName,
	}
}

// ProcessRequest calls the managed entry point with request and returns its
// response.
//
// The entry point is resolved on every call. The response buffer is released
// exactly once on every path, and byte sequences that are not valid UTF-8 are
// replaced with U+FFFD instead of failing the call. Errors from the managed
// method itself are not visible here unless encoded in the response text.
//
// Returns an error if:
//   - the request is longer than math.MaxInt32 bytes (ErrRequestTooLarge)
//   - the entry point cannot be resolved (ErrEntryPoint)
//   - the entry point returns NULL (ErrNullResponse)
func (b *Bridge) ProcessRequest(request string) (string, error) {
	if err := checkRequestLength(len(request)); err != nil {
		return "", err
	}

	entry, err := b.loader.UnmanagedCallersOnly(b.typeName, b.methodName)
	if err != nil {
		return "", fmt.Errorf("%w: %s::%s: %w", ErrEntryPoint, b.typeName, b.methodName, err)
	}

	return takeResponse(entry.Call([]byte(request)))
}

func checkRequestLength(n int) error {
	if int64(n) > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, n)
	}
	return nil
}

// takeResponse owns buf from here on: it is released before returning,
// whatever happens while decoding.
func takeResponse(buf NativeBuffer) (string, error) {
	if buf == nil {
		return "", ErrNullResponse
	}
	defer buf.Release()

	data, ok := buf.Bytes()
	if !ok {
		return "", ErrNullResponse
	}
	return decodeLossy(data), nil
}

// decodeLossy converts data to a string, replacing invalid UTF-8 with U+FFFD.
func decodeLossy(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	return string(out)
}
