package runtime

type options struct {
	typeName    string
	methodName  string
	libraryPath string
	dotnetRoot  string
}

// Option configures Open and New.
type Option func(*options)

// WithEntryPoint overrides the assembly-qualified type name and method name
// of the managed entry point.
func WithEntryPoint(typeName, methodName string) Option {
	return func(o *options) {
		if typeName != "" {
			o.typeName = typeName
		}
		if methodName != "" {
			o.methodName = methodName
		}
	}
}

// WithLibraryPath loads hostfxr from an explicit path instead of searching.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libraryPath = path
	}
}

// WithDotnetRoot restricts hostfxr discovery to one .NET installation root.
func WithDotnetRoot(root string) Option {
	return func(o *options) {
		o.dotnetRoot = root
	}
}

func newOptions(opts []Option) options {
	o := options{
		typeName:   DefaultTypeName,
		methodName: DefaultMethodName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
