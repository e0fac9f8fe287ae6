package runtime_test

import (
	"errors"
	"os"

	"github.com/agiledragon/gomonkey/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mrhapile/dotnet-bridge/runtime"
)

// =========================================================================
// Mock Tests using gomonkey
// Why: filesystem failures other than "not found" are hard to produce with
//
//	real files. Requires inlining to be disabled: go test -gcflags=all=-l
//
// =========================================================================
var _ = Describe("Mocked Tests", func() {
	var patches *gomonkey.Patches

	AfterEach(func() {
		if patches != nil {
			patches.Reset()
			patches = nil
		}
	})

	Describe("Open with an unreadable runtime config", func() {
		It("should report an invalid configuration", func() {
			layout := writePayload(validRuntimeConfig, true)
			patches = gomonkey.ApplyFunc(os.ReadFile, func(name string) ([]byte, error) {
				return nil, errors.New("mock: permission denied")
			})

			host, err := runtime.Open(layout)

			Expect(err).To(MatchError(runtime.ErrInvalidConfig))
			Expect(err.Error()).To(ContainSubstring("mock: permission denied"))
			Expect(host).To(BeNil())
		})
	})
})
