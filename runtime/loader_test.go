package runtime_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mrhapile/dotnet-bridge/hostfxr"
	"github.com/mrhapile/dotnet-bridge/payload"
	"github.com/mrhapile/dotnet-bridge/runtime"
)

var _ = Describe("Loader", func() {
	Describe("Open", func() {
		Context("with a missing runtime config", func() {
			It("should fail with ErrInvalidConfig", func() {
				layout := writePayload("", true)

				host, err := runtime.Open(layout)

				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, runtime.ErrInvalidConfig)).To(BeTrue())
				Expect(errors.Is(err, payload.ErrConfigNotFound)).To(BeTrue())
				Expect(host).To(BeNil())
			})
		})

		Context("with a malformed runtime config", func() {
			It("should fail with ErrInvalidConfig", func() {
				layout := writePayload("{not json", true)

				host, err := runtime.Open(layout)

				Expect(err).To(MatchError(runtime.ErrInvalidConfig))
				Expect(host).To(BeNil())
			})

			It("should reject a document without runtimeOptions", func() {
				layout := writePayload(`{"runtime": {}}`, true)

				_, err := runtime.Open(layout)

				Expect(err).To(MatchError(runtime.ErrInvalidConfig))
			})
		})

		Context("with a config only hostfxr can judge", func() {
			// Reaching host discovery shows the pre-check let the document through.
			DescribeTable("should pass it on to the host",
				func(config string) {
					layout := writePayload(config, true)

					_, err := runtime.Open(layout, runtime.WithDotnetRoot(GinkgoT().TempDir()))

					Expect(err).To(MatchError(runtime.ErrHostNotFound))
					Expect(errors.Is(err, runtime.ErrInvalidConfig)).To(BeFalse())
				},
				Entry("lower case roll forward",
					`{"runtimeOptions":{"rollForward":"latestMinor","framework":{"name":"Microsoft.NETCore.App","version":"8.0.0"}}}`),
				Entry("no tfm",
					`{"runtimeOptions":{"framework":{"name":"Microsoft.NETCore.App","version":"8.0.0"}}}`),
				Entry("comments", `{
  // written by hand
  "runtimeOptions": {
    "tfm": "net8.0", /* current LTS */
    "framework": {"name": "Microsoft.NETCore.App", "version": "8.0.0"}
  }
}`),
			)
		})

		Context("with a config pointing at a missing assembly", func() {
			It("should fail with ErrAssemblyLoad before any host is started", func() {
				layout := writePayload(validRuntimeConfig, false)

				host, err := runtime.Open(layout)

				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, runtime.ErrAssemblyLoad)).To(BeTrue())
				Expect(errors.Is(err, payload.ErrAssemblyNotFound)).To(BeTrue())
				Expect(host).To(BeNil())
			})
		})

		Context("when no .NET installation can be found", func() {
			It("should fail with ErrHostNotFound", func() {
				layout := writePayload(validRuntimeConfig, true)
				emptyRoot := GinkgoT().TempDir()

				host, err := runtime.Open(layout, runtime.WithDotnetRoot(emptyRoot))

				Expect(err).To(MatchError(runtime.ErrHostNotFound))
				Expect(host).To(BeNil())
			})

			It("should fail for an explicit library path that does not exist", func() {
				layout := writePayload(validRuntimeConfig, true)

				_, err := runtime.Open(layout,
					runtime.WithLibraryPath(filepath.Join(GinkgoT().TempDir(), "libhostfxr.so")))

				Expect(err).To(MatchError(runtime.ErrHostNotFound))
			})
		})

		// =====================================================================
		// End-to-end against testdata/DotNetBridge, built in BeforeSuite, or
		// the payload directory named by DOTNET_BRIDGE_TEST_PAYLOAD.
		// =====================================================================
		Context("with a real payload", func() {
			var host *runtime.Host

			BeforeEach(func() {
				if testPayload == "" {
					Skip("no .NET SDK to build the test payload")
				}

				var err error
				host, err = runtime.Open(payload.NewLayout(testPayload, payload.DefaultName))
				if errors.Is(err, runtime.ErrHostNotFound) {
					Skip(".NET runtime not usable: " + err.Error())
				}
				Expect(err).NotTo(HaveOccurred())
			})

			AfterEach(func() {
				if host != nil {
					Expect(host.Close()).To(Succeed())
					host = nil
				}
			})

			It("should answer ping with pong", func() {
				resp, err := host.Bridge().ProcessRequest("ping")

				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(Equal("pong"))
			})

			It("should round-trip multi-byte text", func() {
				req := `{"controller":"home","action":"grüße","data":"世界"}`

				resp, err := host.Bridge().ProcessRequest(req)

				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(Equal(req))
			})

			It("should answer an empty request with an empty response", func() {
				resp, err := host.Bridge().ProcessRequest("")

				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(BeEmpty())
			})

			It("should report a NULL response", func() {
				_, err := host.Bridge().ProcessRequest("null")

				Expect(err).To(MatchError(runtime.ErrNullResponse))
			})

			It("should replace invalid UTF-8 in the response", func() {
				resp, err := host.Bridge().ProcessRequest("invalid")

				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(Equal("ok\uFFFD!"))
			})

			It("should serve concurrent callers", func() {
				bridge := host.Bridge()
				var wg sync.WaitGroup
				for i := 0; i < 64; i++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						resp, err := bridge.ProcessRequest("ping")
						Expect(err).NotTo(HaveOccurred())
						Expect(resp).To(Equal("pong"))
					}()
				}
				wg.Wait()
			})

			It("should report the layout it was opened for", func() {
				Expect(host.Layout().Dir).To(Equal(testPayload))
			})

			It("should stop resolving entry points once closed", func() {
				bridge := host.Bridge()
				Expect(host.Close()).To(Succeed())
				Expect(host.Close()).To(Succeed())

				_, err := bridge.ProcessRequest("ping")

				Expect(err).To(MatchError(runtime.ErrEntryPoint))
				Expect(errors.Is(err, hostfxr.ErrClosed)).To(BeTrue())
			})
		})
	})

	Describe("init error classification", func() {
		DescribeTable("should separate config problems from broken installations",
			func(code uint32, want error) {
				err := fmt.Errorf("initialize x.runtimeconfig.json: %w",
					&hostfxr.StatusError{Op: "hostfxr_initialize_for_runtime_config", Code: code})

				Expect(runtime.InitErrorKind(err)).To(Equal(want))
			},
			Entry("invalid config file", hostfxr.StatusInvalidConfigFile, runtime.ErrInvalidConfig),
			Entry("framework missing", hostfxr.StatusFrameworkMissingFailure, runtime.ErrInvalidConfig),
			Entry("framework incompatible", hostfxr.StatusFrameworkCompatFailure, runtime.ErrInvalidConfig),
			Entry("incompatible config", hostfxr.StatusCoreHostIncompatibleConfig, runtime.ErrInvalidConfig),
			Entry("hostpolicy missing", hostfxr.StatusCoreHostLibMissingFailure, runtime.ErrHostNotFound),
			Entry("hostpolicy unloadable", hostfxr.StatusCoreHostLibLoadFailure, runtime.ErrHostNotFound),
			Entry("coreclr init", hostfxr.StatusCoreClrInitFailure, runtime.ErrHostNotFound),
			Entry("coreclr resolve", hostfxr.StatusCoreClrResolveFailure, runtime.ErrHostNotFound),
		)

		It("should treat errors without a status as config errors", func() {
			Expect(runtime.InitErrorKind(errors.New("boom"))).To(Equal(runtime.ErrInvalidConfig))
		})
	})
})
