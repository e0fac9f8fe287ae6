package hostfxr

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// LocateOptions controls hostfxr discovery.
type LocateOptions struct {
	// LibraryPath is an explicit path to the hostfxr library. When set, no
	// other location is considered.
	LibraryPath string

	// DotnetRoot is an explicit .NET installation root. When set, only this
	// root is searched.
	DotnetRoot string
}

// LibraryName is the platform file name of the hostfxr library.
func LibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "hostfxr.dll"
	case "darwin":
		return "libhostfxr.dylib"
	default:
		return "libhostfxr.so"
	}
}

// Locate finds the hostfxr library to load.
//
// Search order:
//  1. opts.LibraryPath
//  2. opts.DotnetRoot
//  3. DOTNET_ROOT_<ARCH>, then DOTNET_ROOT
//  4. the directory of the dotnet executable on PATH
//  5. /etc/dotnet/install_location and the platform default roots
//
// Within a root the library is taken from host/fxr/<version>/ with the highest
// semantic version. ErrHostNotFound is returned when nothing matches.
func Locate(opts LocateOptions) (string, error) {
	if opts.LibraryPath != "" {
		if _, err := os.Stat(opts.LibraryPath); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrHostNotFound, opts.LibraryPath, err)
		}
		return opts.LibraryPath, nil
	}

	if opts.DotnetRoot != "" {
		path, err := fromRoot(opts.DotnetRoot)
		if err != nil {
			return "", err
		}
		return path, nil
	}

	for _, root := range candidateRoots() {
		path, err := fromRoot(root)
		if err == nil {
			Logger().Debug("located hostfxr", zap.String("root", root), zap.String("path", path))
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: set DOTNET_ROOT or install the .NET runtime", ErrHostNotFound)
}

// fromRoot picks the highest versioned hostfxr under root/host/fxr.
func fromRoot(root string) (string, error) {
	fxrDir := filepath.Join(root, "host", "fxr")
	entries, err := os.ReadDir(fxrDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrHostNotFound, fxrDir, err)
	}

	var (
		best     *semver.Version
		bestPath string
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		lib := filepath.Join(fxrDir, e.Name(), LibraryName())
		if _, err := os.Stat(lib); err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestPath = lib
		}
	}

	if best == nil {
		return "", fmt.Errorf("%w: no versioned %s under %s", ErrHostNotFound, LibraryName(), fxrDir)
	}
	return bestPath, nil
}

func candidateRoots() []string {
	var roots []string
	add := func(r string) {
		if r == "" {
			return
		}
		for _, existing := range roots {
			if existing == r {
				return
			}
		}
		roots = append(roots, r)
	}

	add(os.Getenv("DOTNET_ROOT_" + archSuffix()))
	add(os.Getenv("DOTNET_ROOT"))

	if exe, err := exec.LookPath("dotnet"); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		add(filepath.Dir(exe))
	}

	for _, f := range []string{
		"/etc/dotnet/install_location_" + strings.ToLower(archSuffix()),
		"/etc/dotnet/install_location",
	} {
		if data, err := os.ReadFile(f); err == nil {
			add(strings.TrimSpace(string(data)))
		}
	}

	switch runtime.GOOS {
	case "darwin":
		add("/usr/local/share/dotnet")
		add("/usr/local/share/dotnet/x64")
	case "linux":
		add("/usr/share/dotnet")
		add("/usr/lib/dotnet")
		add("/usr/lib64/dotnet")
		add("/usr/local/share/dotnet")
	}

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".dotnet"))
	}
	return roots
}

func archSuffix() string {
	switch runtime.GOARCH {
	case "amd64":
		return "X64"
	case "386":
		return "X86"
	case "arm64":
		return "ARM64"
	case "arm":
		return "ARM"
	default:
		return strings.ToUpper(runtime.GOARCH)
	}
}
