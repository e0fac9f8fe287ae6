//go:build !cgo || !(linux || darwin)

package hostfxr

// Library is unavailable without cgo on a supported platform.
type Library struct{}

// Load always fails with ErrUnsupported on this platform.
func Load(path string) (*Library, error) {
	return nil, ErrUnsupported
}

// Path returns an empty string.
func (l *Library) Path() string { return "" }

// InitializeForRuntimeConfig always fails with ErrUnsupported.
func (l *Library) InitializeForRuntimeConfig(runtimeConfigPath string) (*Context, error) {
	return nil, ErrUnsupported
}

// Context is unavailable on this platform.
type Context struct{}

// DelegateLoaderForAssembly always fails with ErrUnsupported.
func (c *Context) DelegateLoaderForAssembly(assemblyPath string) (*DelegateLoader, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (c *Context) Close() error { return nil }

// DelegateLoader is unavailable on this platform.
type DelegateLoader struct{}

// AssemblyPath returns an empty string.
func (d *DelegateLoader) AssemblyPath() string { return "" }

// UnmanagedCallersOnly always fails with ErrUnsupported.
func (d *DelegateLoader) UnmanagedCallersOnly(typeName, methodName string) (*Function, error) {
	return nil, ErrUnsupported
}

// Function is unavailable on this platform.
type Function struct{}

// Call returns an empty native string.
func (f *Function) Call(request []byte) *NativeString { return &NativeString{} }

// NativeString is unavailable on this platform.
type NativeString struct{}

// Bytes reports no data.
func (s *NativeString) Bytes() ([]byte, bool) { return nil, false }

// Release is a no-op.
func (s *NativeString) Release() {}
