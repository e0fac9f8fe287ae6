package hostfxr

import (
	"errors"
	"fmt"
)

// Status codes returned by hostfxr exports. Negative values (as int32) are
// failures; the small positive values are success variants.
const (
	StatusSuccess                           uint32 = 0x00000000
	StatusSuccessHostAlreadyInitialized     uint32 = 0x00000001
	StatusSuccessDifferentRuntimeProperties uint32 = 0x00000002

	StatusInvalidArgFailure          uint32 = 0x80008081
	StatusCoreHostLibLoadFailure     uint32 = 0x80008082
	StatusCoreHostLibMissingFailure  uint32 = 0x80008083
	StatusCoreHostEntryPointFailure  uint32 = 0x80008084
	StatusCoreHostCurHostFindFailure uint32 = 0x80008085
	StatusCoreClrResolveFailure      uint32 = 0x80008087
	StatusCoreClrBindFailure         uint32 = 0x80008088
	StatusCoreClrInitFailure         uint32 = 0x80008089
	StatusCoreClrExeFailure          uint32 = 0x8000808a
	StatusResolverInitFailure        uint32 = 0x8000808b
	StatusResolverResolveFailure     uint32 = 0x8000808c
	StatusLibHostInitFailure         uint32 = 0x8000808e
	StatusLibHostSdkFindFailure      uint32 = 0x80008091
	StatusLibHostInvalidArgs         uint32 = 0x80008092
	StatusInvalidConfigFile          uint32 = 0x80008093
	StatusFrameworkMissingFailure    uint32 = 0x80008096
	StatusHostApiFailed              uint32 = 0x80008097
	StatusHostApiBufferTooSmall      uint32 = 0x80008098
	StatusAppArgNotRunnable          uint32 = 0x8000809a
	StatusFrameworkCompatFailure     uint32 = 0x8000809c
	StatusBundleExtractionFailure    uint32 = 0x8000809f
	StatusHostInvalidState           uint32 = 0x800080a3
	StatusHostPropertyNotFound       uint32 = 0x800080a4
	StatusCoreHostIncompatibleConfig uint32 = 0x800080a5
	StatusHostApiUnsupportedVersion  uint32 = 0x800080a6
	StatusHostFeatureDisabled        uint32 = 0x800080a7
)

var (
	// ErrHostNotFound is returned when no hostfxr library can be located.
	ErrHostNotFound = errors.New("hostfxr library not found")

	// ErrUnsupported is returned on platforms without a hosting implementation.
	ErrUnsupported = errors.New("hostfxr hosting is not supported on this platform")

	// ErrClosed is returned when a closed context is used.
	ErrClosed = errors.New("hostfxr context is closed")
)

// StatusError reports a failing hostfxr call together with its status code.
type StatusError struct {
	Op   string
	Code uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status 0x%08x (%s)", e.Op, e.Code, StatusName(e.Code))
}

// IsConfigError reports whether the status denotes a missing or unusable
// runtime configuration rather than a broken host installation.
func (e *StatusError) IsConfigError() bool {
	switch e.Code {
	case StatusInvalidConfigFile, StatusFrameworkMissingFailure,
		StatusFrameworkCompatFailure, StatusCoreHostIncompatibleConfig,
		StatusInvalidArgFailure:
		return true
	}
	return false
}

// Succeeded reports whether code is one of the success variants.
func Succeeded(code uint32) bool {
	return int32(code) >= 0
}

func statusError(op string, code uint32) error {
	if Succeeded(code) {
		return nil
	}
	return &StatusError{Op: op, Code: code}
}

// StatusName converts a hostfxr status code to its symbolic name.
func StatusName(code uint32) string {
	switch code {
	case StatusSuccess:
		return "Success"
	case StatusSuccessHostAlreadyInitialized:
		return "Success_HostAlreadyInitialized"
	case StatusSuccessDifferentRuntimeProperties:
		return "Success_DifferentRuntimeProperties"
	case StatusInvalidArgFailure:
		return "InvalidArgFailure"
	case StatusCoreHostLibLoadFailure:
		return "CoreHostLibLoadFailure"
	case StatusCoreHostLibMissingFailure:
		return "CoreHostLibMissingFailure"
	case StatusCoreHostEntryPointFailure:
		return "CoreHostEntryPointFailure"
	case StatusCoreHostCurHostFindFailure:
		return "CoreHostCurHostFindFailure"
	case StatusCoreClrResolveFailure:
		return "CoreClrResolveFailure"
	case StatusCoreClrBindFailure:
		return "CoreClrBindFailure"
	case StatusCoreClrInitFailure:
		return "CoreClrInitFailure"
	case StatusCoreClrExeFailure:
		return "CoreClrExeFailure"
	case StatusResolverInitFailure:
		return "ResolverInitFailure"
	case StatusResolverResolveFailure:
		return "ResolverResolveFailure"
	case StatusLibHostInitFailure:
		return "LibHostInitFailure"
	case StatusLibHostSdkFindFailure:
		return "LibHostSdkFindFailure"
	case StatusLibHostInvalidArgs:
		return "LibHostInvalidArgs"
	case StatusInvalidConfigFile:
		return "InvalidConfigFile"
	case StatusFrameworkMissingFailure:
		return "FrameworkMissingFailure"
	case StatusHostApiFailed:
		return "HostApiFailed"
	case StatusHostApiBufferTooSmall:
		return "HostApiBufferTooSmall"
	case StatusAppArgNotRunnable:
		return "AppArgNotRunnable"
	case StatusFrameworkCompatFailure:
		return "FrameworkCompatFailure"
	case StatusBundleExtractionFailure:
		return "BundleExtractionFailure"
	case StatusHostInvalidState:
		return "HostInvalidState"
	case StatusHostPropertyNotFound:
		return "HostPropertyNotFound"
	case StatusCoreHostIncompatibleConfig:
		return "CoreHostIncompatibleConfig"
	case StatusHostApiUnsupportedVersion:
		return "HostApiUnsupportedVersion"
	case StatusHostFeatureDisabled:
		return "HostFeatureDisabled"
	default:
		return fmt.Sprintf("unknown status 0x%08x", code)
	}
}
