// Package payload resolves the managed payload hosted by the bridge.
//
// A payload is a pair of files sharing one base name:
//
//	<dir>/
//	├── DotNetBridge.runtimeconfig.json
//	└── DotNetBridge.dll
//
// The runtime configuration tells hostfxr which framework to start; the
// assembly contains the entry point the bridge calls. By default the payload
// lives in a "dotnet" directory next to the running executable.
//
// # Stores
//
// Three stores cover the usual deployments:
//   - ExecutableStore: <exe dir>/dotnet/<name>.* (the default for shipped apps)
//   - DirStore: <dir>/<name>.* (development, tests)
//   - MountStore: <mount>/<name>/<name>.* (payloads shipped on a dataset
//     mount shared between pods, one directory per payload)
//
// Stores only resolve and verify paths; they never modify or cache files.
package payload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultName is the base name shared by the runtime config and assembly.
	DefaultName = "DotNetBridge"

	// DefaultSubdir is the directory next to the executable holding the payload.
	DefaultSubdir = "dotnet"

	runtimeConfigSuffix = ".runtimeconfig.json"
	assemblySuffix      = ".dll"
)

var (
	// ErrConfigNotFound is returned when the runtime configuration file is missing.
	ErrConfigNotFound = errors.New("runtime config not found")

	// ErrAssemblyNotFound is returned when the managed assembly is missing.
	ErrAssemblyNotFound = errors.New("assembly not found")

	// ErrInvalidName is returned for payload names unsafe to use in paths.
	ErrInvalidName = errors.New("invalid payload name")
)

// Layout locates the files of one payload.
type Layout struct {
	Name          string // shared base name
	Dir           string // directory holding both files
	RuntimeConfig string // <Dir>/<Name>.runtimeconfig.json
	Assembly      string // <Dir>/<Name>.dll
}

// NewLayout builds the conventional layout for name inside dir without
// touching the filesystem.
func NewLayout(dir, name string) Layout {
	return Layout{
		Name:          name,
		Dir:           dir,
		RuntimeConfig: filepath.Join(dir, name+runtimeConfigSuffix),
		Assembly:      filepath.Join(dir, name+assemblySuffix),
	}
}

// Verify checks that both payload files exist.
func (l Layout) Verify() error {
	if err := exists(l.RuntimeConfig, ErrConfigNotFound); err != nil {
		return err
	}
	return exists(l.Assembly, ErrAssemblyNotFound)
}

// Store resolves payload names to layouts.
//
// Implementations must:
//   - Return ErrConfigNotFound or ErrAssemblyNotFound if a file is missing
//   - Return ErrInvalidName for names that are not plain identifiers
//   - NOT modify or cache payload files
type Store interface {
	Resolve(name string) (Layout, error)
}

// DirStore resolves payloads directly inside one directory.
type DirStore struct {
	dir string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Resolve returns <dir>/<name>.runtimeconfig.json and <dir>/<name>.dll.
func (s *DirStore) Resolve(name string) (Layout, error) {
	return resolve(s.dir, name)
}

// ExecutableStore resolves payloads from a subdirectory of the directory
// holding the running executable.
type ExecutableStore struct {
	subdir     string
	executable func() (string, error)
}

// NewExecutableStore creates an ExecutableStore. An empty subdir selects
// DefaultSubdir.
func NewExecutableStore(subdir string) *ExecutableStore {
	if subdir == "" {
		subdir = DefaultSubdir
	}
	return &ExecutableStore{subdir: subdir, executable: os.Executable}
}

// Dir returns the payload directory derived from the executable path.
func (s *ExecutableStore) Dir() (string, error) {
	exe, err := s.executable()
	if err != nil {
		return "", fmt.Errorf("failed to get the executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), s.subdir), nil
}

// Resolve returns the layout for name next to the executable.
func (s *ExecutableStore) Resolve(name string) (Layout, error) {
	dir, err := s.Dir()
	if err != nil {
		return Layout{}, err
	}
	return resolve(dir, name)
}

// MountStore resolves payloads from a dataset mount where every payload has
// its own directory. The mount is treated as an ordinary POSIX path.
type MountStore struct {
	mountPath string
}

// NewMountStore creates a MountStore for mountPath.
//
// Example:
//
//	store := NewMountStore("/mnt/fluid/payloads")
//	layout, err := store.Resolve("DotNetBridge")
//	// layout.Assembly == "/mnt/fluid/payloads/DotNetBridge/DotNetBridge.dll"
func NewMountStore(mountPath string) *MountStore {
	return &MountStore{mountPath: mountPath}
}

// Resolve returns <mount>/<name>/<name>.runtimeconfig.json and .dll.
func (s *MountStore) Resolve(name string) (Layout, error) {
	if !ValidName(name) {
		return Layout{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return resolve(filepath.Join(s.mountPath, name), name)
}

func resolve(dir, name string) (Layout, error) {
	if !ValidName(name) {
		return Layout{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	l := NewLayout(dir, name)
	if err := l.Verify(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

func exists(path string, notFound error) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", notFound, path)
		}
		return fmt.Errorf("failed to access %s: %w", path, err)
	}
	return nil
}

// ValidName reports whether name is safe to use as a file base name.
// Letters, digits, '.', '_' and '-' are allowed; names may not start with '.'.
func ValidName(name string) bool {
	if name == "" || name[0] == '.' {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '_' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
