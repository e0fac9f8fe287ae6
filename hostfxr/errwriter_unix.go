//go:build cgo && (linux || darwin)

package hostfxr

/*
#include <stdlib.h>
*/
import "C"

import (
	"go.uber.org/zap"
)

// bridgeHostErrorWriter receives diagnostics from hostfxr_set_error_writer.
// The message is only valid for the duration of the call.
//
//export bridgeHostErrorWriter
func bridgeHostErrorWriter(message *C.char) {
	if message == nil {
		return
	}
	Logger().Error("hostfxr", zap.String("message", C.GoString(message)))
}
