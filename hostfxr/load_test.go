package hostfxr_test

import (
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrhapile/dotnet-bridge/hostfxr"
)

var _ = Describe("Load", func() {
	It("should fail for a missing library", func() {
		lib, err := hostfxr.Load("/nonexistent/" + hostfxr.LibraryName())

		Expect(err).To(HaveOccurred())
		Expect(lib).To(BeNil())
	})

	It("should fail for a file that is not a shared library", func() {
		path := filepath.Join(GinkgoT().TempDir(), hostfxr.LibraryName())
		Expect(os.WriteFile(path, []byte("not an ELF file"), 0o644)).To(Succeed())

		lib, err := hostfxr.Load(path)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, hostfxr.ErrHostNotFound) || errors.Is(err, hostfxr.ErrUnsupported)).To(BeTrue())
		Expect(lib).To(BeNil())
	})

	Context("with a shared library that is not hostfxr", func() {
		var libc string

		BeforeEach(func() {
			for _, p := range []string{
				"/lib/x86_64-linux-gnu/libc.so.6",
				"/lib/aarch64-linux-gnu/libc.so.6",
				"/lib64/libc.so.6",
				"/usr/lib64/libc.so.6",
				"/usr/lib/libc.so.6",
			} {
				if _, err := os.Stat(p); err == nil {
					libc = p
					return
				}
			}
			Skip("no glibc found at a known path")
		})

		It("should name the missing export and stay loadable", func() {
			for i := 0; i < 3; i++ {
				lib, err := hostfxr.Load(libc)
				if errors.Is(err, hostfxr.ErrUnsupported) {
					Skip("hosting unsupported in this build")
				}

				Expect(err).To(MatchError(hostfxr.ErrHostNotFound))
				Expect(err.Error()).To(ContainSubstring("hostfxr_initialize_for_runtime_config"))
				Expect(lib).To(BeNil())
			}
		})
	})

	Context("with an installed .NET runtime", func() {
		var path string

		BeforeEach(func() {
			var err error
			path, err = hostfxr.Locate(hostfxr.LocateOptions{})
			if err != nil {
				Skip(".NET runtime not installed")
			}
		})

		It("should resolve the hosting exports", func() {
			lib, err := hostfxr.Load(path)
			if errors.Is(err, hostfxr.ErrUnsupported) {
				Skip("hosting unsupported in this build")
			}

			Expect(err).NotTo(HaveOccurred())
			Expect(lib.Path()).To(Equal(path))
		})

		It("should refuse a malformed runtime config", func() {
			lib, err := hostfxr.Load(path)
			if errors.Is(err, hostfxr.ErrUnsupported) {
				Skip("hosting unsupported in this build")
			}
			Expect(err).NotTo(HaveOccurred())

			cfg := filepath.Join(GinkgoT().TempDir(), "broken.runtimeconfig.json")
			Expect(os.WriteFile(cfg, []byte("{"), 0o644)).To(Succeed())

			ctx, err := lib.InitializeForRuntimeConfig(cfg)

			Expect(err).To(HaveOccurred())
			Expect(ctx).To(BeNil())
			var se *hostfxr.StatusError
			Expect(errors.As(err, &se)).To(BeTrue())
		})

		It("should report host diagnostics from any thread to the logger", func() {
			core, logs := observer.New(zap.ErrorLevel)
			prev := hostfxr.Logger()
			hostfxr.SetLogger(zap.New(core))
			DeferCleanup(hostfxr.SetLogger, prev)

			lib, err := hostfxr.Load(path)
			if errors.Is(err, hostfxr.ErrUnsupported) {
				Skip("hosting unsupported in this build")
			}
			Expect(err).NotTo(HaveOccurred())

			cfg := filepath.Join(GinkgoT().TempDir(), "future.runtimeconfig.json")
			Expect(os.WriteFile(cfg, []byte(`{
				"runtimeOptions": {
					"tfm": "net99.0",
					"framework": {"name": "Microsoft.NETCore.App", "version": "99.0.0"}
				}
			}`), 0o644)).To(Succeed())

			// Initialize from a goroutine pinned to a thread other than the
			// one Load ran on.
			done := make(chan error, 1)
			go func() {
				goruntime.LockOSThread()
				defer goruntime.UnlockOSThread()
				_, err := lib.InitializeForRuntimeConfig(cfg)
				done <- err
			}()
			err = <-done

			var se *hostfxr.StatusError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.IsConfigError()).To(BeTrue())
			Expect(logs.FilterMessage("hostfxr").Len()).To(BeNumerically(">", 0))
		})
	})
})
