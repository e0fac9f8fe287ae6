// Package options holds the configuration shared by the bridge binaries.
//
// Configuration can be provided via:
//   - Command-line flags (highest priority)
//   - Environment variables (prefix: DOTNET_BRIDGE_, dots become underscores)
//   - Configuration file (YAML, --config)
//   - Default values (lowest priority)
package options

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mrhapile/dotnet-bridge/payload"
	"github.com/mrhapile/dotnet-bridge/runtime"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "DOTNET_BRIDGE"

var validate = validator.New()

// Options is the complete bridge configuration.
type Options struct {
	Payload PayloadOptions `mapstructure:"payload"`
	Hostfxr HostfxrOptions `mapstructure:"hostfxr"`
	Entry   EntryOptions   `mapstructure:"entry"`
	HTTP    HTTPOptions    `mapstructure:"http"`
	Log     LogOptions     `mapstructure:"log"`
}

// PayloadOptions selects where the managed payload lives. With neither Dir
// nor Mount set the payload is taken from the "dotnet" directory next to the
// executable.
type PayloadOptions struct {
	Name  string `mapstructure:"name" validate:"required"`
	Dir   string `mapstructure:"dir"`
	Mount string `mapstructure:"mount" validate:"excluded_with=Dir"`
}

// HostfxrOptions controls hostfxr discovery.
type HostfxrOptions struct {
	Path       string `mapstructure:"path"`
	DotnetRoot string `mapstructure:"dotnet-root"`
}

// EntryOptions names the managed entry point.
type EntryOptions struct {
	Type   string `mapstructure:"type" validate:"required"`
	Method string `mapstructure:"method" validate:"required"`
}

// HTTPOptions configures the HTTP front end.
type HTTPOptions struct {
	Addr    string `mapstructure:"addr" validate:"required"`
	MaxBody int64  `mapstructure:"max-body" validate:"gt=0"`
}

// LogOptions configures the zap logger.
type LogOptions struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string `mapstructure:"format" validate:"oneof=json console"`
	Development bool   `mapstructure:"development"`
}

// New returns Options with defaults.
func New() *Options {
	return &Options{
		Payload: PayloadOptions{Name: payload.DefaultName},
		Entry: EntryOptions{
			Type:   runtime.DefaultTypeName,
			Method: runtime.DefaultMethodName,
		},
		HTTP: HTTPOptions{Addr: ":8080", MaxBody: 8 << 20},
		Log:  LogOptions{Level: "info", Format: "json"},
	}
}

// AddFlags adds flags for all options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Payload.Name, "payload.name", o.Payload.Name, "Base name shared by the runtime config and assembly")
	fs.StringVar(&o.Payload.Dir, "payload.dir", o.Payload.Dir, "Directory holding the payload (default: <exe dir>/dotnet)")
	fs.StringVar(&o.Payload.Mount, "payload.mount", o.Payload.Mount, "Dataset mount holding one directory per payload")

	fs.StringVar(&o.Hostfxr.Path, "hostfxr.path", o.Hostfxr.Path, "Explicit path to the hostfxr library")
	fs.StringVar(&o.Hostfxr.DotnetRoot, "hostfxr.dotnet-root", o.Hostfxr.DotnetRoot, ".NET installation root to search for hostfxr")

	fs.StringVar(&o.Entry.Type, "entry.type", o.Entry.Type, "Assembly-qualified type of the entry point")
	fs.StringVar(&o.Entry.Method, "entry.method", o.Entry.Method, "Entry point method name")

	fs.StringVar(&o.HTTP.Addr, "http.addr", o.HTTP.Addr, "HTTP listen address")
	fs.Int64Var(&o.HTTP.MaxBody, "http.max-body", o.HTTP.MaxBody, "Maximum request body size in bytes")

	fs.StringVar(&o.Log.Level, "log.level", o.Log.Level, "Log level (debug|info|warn|error)")
	fs.StringVar(&o.Log.Format, "log.format", o.Log.Format, "Log format (json|console)")
	fs.BoolVar(&o.Log.Development, "log.development", o.Log.Development, "Enable development mode")
}

// Load merges the config file (if any), environment and flags into o.
// Flags must have been added with AddFlags and parsed.
func (o *Options) Load(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.Unmarshal(o); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Validate checks the options.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if !payload.ValidName(o.Payload.Name) {
		return fmt.Errorf("invalid options: %w: %q", payload.ErrInvalidName, o.Payload.Name)
	}
	return nil
}

// Layout resolves the payload layout selected by the options. The files are
// only checked for the mount store; runtime.Open verifies them otherwise.
func (o *Options) Layout() (payload.Layout, error) {
	switch {
	case o.Payload.Mount != "":
		return payload.NewMountStore(o.Payload.Mount).Resolve(o.Payload.Name)
	case o.Payload.Dir != "":
		return payload.NewLayout(o.Payload.Dir, o.Payload.Name), nil
	default:
		dir, err := payload.NewExecutableStore(payload.DefaultSubdir).Dir()
		if err != nil {
			return payload.Layout{}, err
		}
		return payload.NewLayout(dir, o.Payload.Name), nil
	}
}

// RuntimeOptions converts the options into runtime.Open options.
func (o *Options) RuntimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithEntryPoint(o.Entry.Type, o.Entry.Method),
		runtime.WithLibraryPath(o.Hostfxr.Path),
		runtime.WithDotnetRoot(o.Hostfxr.DotnetRoot),
	}
}
