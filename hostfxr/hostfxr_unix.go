//go:build cgo && (linux || darwin)

package hostfxr

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef void* hostfxr_handle;

typedef int32_t (*hostfxr_initialize_for_runtime_config_fn)(const char* runtime_config_path, const void* parameters, hostfxr_handle* host_context_handle);
typedef int32_t (*hostfxr_get_runtime_delegate_fn)(const hostfxr_handle host_context_handle, int32_t type, void** delegate);
typedef int32_t (*hostfxr_close_fn)(const hostfxr_handle host_context_handle);
typedef void (*hostfxr_error_writer_fn)(const char* message);
typedef hostfxr_error_writer_fn (*hostfxr_set_error_writer_fn)(hostfxr_error_writer_fn error_writer);
typedef int32_t (*load_assembly_and_get_function_pointer_fn)(const char* assembly_path, const char* type_name, const char* method_name, const char* delegate_type_name, void* reserved, void** delegate);
typedef char* (*bridge_entry_fn)(const uint8_t* request, int32_t length);

extern void bridgeHostErrorWriter(char* message);

static void* bridge_dlopen(const char* path) {
	return dlopen(path, RTLD_LAZY | RTLD_LOCAL);
}

static void bridge_dlclose(void* h) {
	dlclose(h);
}

static const char* bridge_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and report the error (if any) alongside the symbol.
static void* bridge_dlsym(void* h, const char* name, char** err) {
	dlerror();
	void* p = dlsym(h, name);
	char* e = dlerror();
	if (e) {
		*err = e;
		return NULL;
	}
	*err = NULL;
	return p;
}

static void bridge_error_writer(const char* message) {
	bridgeHostErrorWriter((char*)message);
}

// A NULL writer sends diagnostics of the calling thread back to stderr.
static void bridge_set_error_writer(void* fn, int enable) {
	((hostfxr_set_error_writer_fn)fn)(enable ? bridge_error_writer : NULL);
}

static int32_t bridge_initialize_for_runtime_config(void* fn, const char* path, hostfxr_handle* handle) {
	return ((hostfxr_initialize_for_runtime_config_fn)fn)(path, NULL, handle);
}

static int32_t bridge_get_runtime_delegate(void* fn, hostfxr_handle handle, int32_t type, void** delegate) {
	return ((hostfxr_get_runtime_delegate_fn)fn)(handle, type, delegate);
}

static int32_t bridge_close(void* fn, hostfxr_handle handle) {
	return ((hostfxr_close_fn)fn)(handle);
}

static int32_t bridge_load_unmanaged_callers_only(void* fn, const char* assembly, const char* type_name, const char* method, void** delegate) {
	return ((load_assembly_and_get_function_pointer_fn)fn)(assembly, type_name, method, (const char*)-1, NULL, delegate);
}

static char* bridge_call_entry(void* fn, const uint8_t* request, int32_t length) {
	return ((bridge_entry_fn)fn)(request, length);
}
*/
import "C"

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// hostfxr_delegate_type value for load_assembly_and_get_function_pointer.
const delegateLoadAssemblyAndGetFunctionPointer = 5

// emptyRequest backs zero-length requests so the callee never sees NULL.
var emptyRequest byte

// Library is a loaded hostfxr shared library with its exports resolved.
type Library struct {
	path           string
	handle         unsafe.Pointer
	initialize     unsafe.Pointer
	getDelegate    unsafe.Pointer
	closeContext   unsafe.Pointer
	setErrorWriter unsafe.Pointer // nil when the host predates the export
}

// Load opens the hostfxr library at path and resolves the exports needed to
// host a component. The library stays loaded for the process lifetime.
func Load(path string) (*Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHostNotFound, path, err)
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	h := C.bridge_dlopen(cpath)
	if h == nil {
		return nil, fmt.Errorf("%w: dlopen(%q) failed: %s", ErrHostNotFound, path, dlerr())
	}

	lib := &Library{path: path, handle: h}

	// A library missing any of the required exports is not a usable host;
	// drop our reference so a later Load starts clean
	var err error
	if lib.initialize, err = lib.symbol("hostfxr_initialize_for_runtime_config"); err != nil {
		C.bridge_dlclose(h)
		return nil, err
	}
	if lib.getDelegate, err = lib.symbol("hostfxr_get_runtime_delegate"); err != nil {
		C.bridge_dlclose(h)
		return nil, err
	}
	if lib.closeContext, err = lib.symbol("hostfxr_close"); err != nil {
		C.bridge_dlclose(h)
		return nil, err
	}

	// Older hosts may not export the error writer; messages then go to stderr.
	if lib.setErrorWriter, err = lib.symbol("hostfxr_set_error_writer"); err != nil {
		Logger().Debug("hostfxr error writer unavailable", zap.Error(err))
	}

	Logger().Info("loaded hostfxr", zap.String("path", path))
	return lib, nil
}

// Path returns the file path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// withErrorWriter runs fn with host diagnostics forwarded to the logger.
// hostfxr keeps the writer per OS thread, so the goroutine stays on its
// thread until the writer has been removed again.
func (l *Library) withErrorWriter(fn func()) {
	if l.setErrorWriter == nil {
		fn()
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	C.bridge_set_error_writer(l.setErrorWriter, 1)
	defer C.bridge_set_error_writer(l.setErrorWriter, 0)
	fn()
}

func (l *Library) symbol(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var cerr *C.char
	p := C.bridge_dlsym(l.handle, cname, &cerr)
	if cerr != nil {
		return nil, fmt.Errorf("%w: dlsym(%q) failed: %s", ErrHostNotFound, name, C.GoString(cerr))
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s resolved to NULL in %s", ErrHostNotFound, name, l.path)
	}
	return p, nil
}

// InitializeForRuntimeConfig creates a host context from a
// *.runtimeconfig.json file. A runtime already initialized by an earlier
// context is reported as success by hostfxr and accepted here.
func (l *Library) InitializeForRuntimeConfig(runtimeConfigPath string) (*Context, error) {
	cpath := C.CString(runtimeConfigPath)
	defer C.free(unsafe.Pointer(cpath))

	var handle C.hostfxr_handle
	var rc uint32
	l.withErrorWriter(func() {
		rc = uint32(C.bridge_initialize_for_runtime_config(l.initialize, cpath, &handle))
	})
	if err := statusError("hostfxr_initialize_for_runtime_config", rc); err != nil {
		// hostfxr may hand out a handle even on failure; it still has to be closed
		if handle != nil {
			C.bridge_close(l.closeContext, handle)
		}
		return nil, fmt.Errorf("initialize %s: %w", runtimeConfigPath, err)
	}

	if rc != StatusSuccess {
		Logger().Info("hostfxr context initialized with warning",
			zap.String("config", runtimeConfigPath),
			zap.String("status", StatusName(rc)))
	}

	return &Context{lib: l, handle: unsafe.Pointer(handle)}, nil
}

// Context is an initialized hostfxr host context. Loaders obtained from it
// stop resolving methods once it is closed.
type Context struct {
	lib    *Library
	mu     sync.RWMutex
	handle unsafe.Pointer
}

// DelegateLoaderForAssembly returns a loader that resolves function pointers
// in the assembly at assemblyPath.
func (c *Context) DelegateLoaderForAssembly(assemblyPath string) (*DelegateLoader, error) {
	if _, err := os.Stat(assemblyPath); err != nil {
		return nil, fmt.Errorf("assembly %s: %w", assemblyPath, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil, ErrClosed
	}

	// The first delegate request on a context is what actually starts the
	// runtime, so framework resolution errors can surface here too
	var delegate unsafe.Pointer
	var rc uint32
	c.lib.withErrorWriter(func() {
		rc = uint32(C.bridge_get_runtime_delegate(c.lib.getDelegate, C.hostfxr_handle(c.handle),
			C.int32_t(delegateLoadAssemblyAndGetFunctionPointer), &delegate))
	})
	if err := statusError("hostfxr_get_runtime_delegate", rc); err != nil {
		return nil, err
	}
	if delegate == nil {
		return nil, &StatusError{Op: "hostfxr_get_runtime_delegate", Code: StatusHostApiFailed}
	}

	return &DelegateLoader{ctx: c, assemblyPath: assemblyPath, load: delegate}, nil
}

// Close releases the host context. Close is idempotent. The runtime itself
// cannot be unloaded and remains in the process.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	rc := uint32(C.bridge_close(c.lib.closeContext, C.hostfxr_handle(c.handle)))
	c.handle = nil
	return statusError("hostfxr_close", rc)
}

// DelegateLoader resolves managed methods of one assembly.
type DelegateLoader struct {
	ctx          *Context
	assemblyPath string
	load         unsafe.Pointer
}

// AssemblyPath returns the path of the assembly this loader is bound to.
func (d *DelegateLoader) AssemblyPath() string {
	return d.assemblyPath
}

// UnmanagedCallersOnly resolves a static method marked
// [UnmanagedCallersOnly]. typeName is assembly qualified, e.g.
// "DotNetBridge.Bridge, DotNetBridge". It fails with ErrClosed once the
// owning context has been closed.
func (d *DelegateLoader) UnmanagedCallersOnly(typeName, methodName string) (*Function, error) {
	// Hold the context open for the duration of the lookup; Close waits
	d.ctx.mu.RLock()
	defer d.ctx.mu.RUnlock()
	if d.ctx.handle == nil {
		return nil, ErrClosed
	}

	casm := C.CString(d.assemblyPath)
	defer C.free(unsafe.Pointer(casm))
	ctype := C.CString(typeName)
	defer C.free(unsafe.Pointer(ctype))
	cmethod := C.CString(methodName)
	defer C.free(unsafe.Pointer(cmethod))

	// The assembly is loaded into the default context on first use and
	// cached by the runtime after that
	var fn unsafe.Pointer
	var rc uint32
	d.ctx.lib.withErrorWriter(func() {
		rc = uint32(C.bridge_load_unmanaged_callers_only(d.load, casm, ctype, cmethod, &fn))
	})
	if err := statusError("load_assembly_and_get_function_pointer", rc); err != nil {
		return nil, fmt.Errorf("resolve %s::%s: %w", typeName, methodName, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("resolve %s::%s: function pointer is NULL", typeName, methodName)
	}
	return &Function{ptr: fn}, nil
}

// Function is a native-callable managed method with the signature
// char* (const uint8_t* request, int32_t length).
type Function struct {
	ptr unsafe.Pointer
}

// Call invokes the method synchronously. The request is borrowed for the
// duration of the call and must not exceed math.MaxInt32 bytes. The returned
// string is owned by the caller, who must Release it.
func (f *Function) Call(request []byte) *NativeString {
	if len(request) > math.MaxInt32 {
		panic("hostfxr: request length exceeds int32")
	}

	p := (*C.uint8_t)(unsafe.Pointer(&emptyRequest))
	if len(request) > 0 {
		p = (*C.uint8_t)(unsafe.Pointer(&request[0]))
	}
	return &NativeString{ptr: C.bridge_call_entry(f.ptr, p, C.int32_t(len(request)))}
}

// NativeString is a NUL-terminated string allocated with the C allocator by
// the managed side (Marshal.StringToCoTaskMemUTF8 uses malloc on Unix).
type NativeString struct {
	ptr *C.char
}

// Bytes copies the string up to its terminator. ok is false when the callee
// returned NULL or the string was already released.
func (s *NativeString) Bytes() (data []byte, ok bool) {
	if s == nil || s.ptr == nil {
		return nil, false
	}
	n := C.strlen(s.ptr)
	return C.GoBytes(unsafe.Pointer(s.ptr), C.int(n)), true
}

// Release frees the native allocation. It is safe to call more than once; only
// the first call frees.
func (s *NativeString) Release() {
	if s == nil || s.ptr == nil {
		return
	}
	C.free(unsafe.Pointer(s.ptr))
	s.ptr = nil
}

func dlerr() string {
	if e := C.bridge_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}
