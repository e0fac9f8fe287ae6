package payload

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when a runtime configuration cannot be parsed
// or has no "runtimeOptions" object.
var ErrInvalidConfig = errors.New("invalid runtime configuration")

// rollForwardPolicies are the values hostfxr understands, compared without
// regard to case.
var rollForwardPolicies = []string{
	"Disable", "LatestPatch", "Minor", "LatestMinor", "Major", "LatestMajor",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("rollforward", func(fl validator.FieldLevel) bool {
		for _, p := range rollForwardPolicies {
			if strings.EqualFold(p, fl.Field().String()) {
				return true
			}
		}
		return false
	})
	return v
}

// RuntimeConfig is the subset of *.runtimeconfig.json the bridge looks at
// before handing the file to hostfxr. Content beyond the shape of the
// document is hostfxr's to judge.
type RuntimeConfig struct {
	RuntimeOptions *RuntimeOptions `json:"runtimeOptions" validate:"required"`
}

// RuntimeOptions mirrors the "runtimeOptions" object.
type RuntimeOptions struct {
	TFM              string               `json:"tfm,omitempty"`
	RollForward      string               `json:"rollForward,omitempty" validate:"omitempty,rollforward"`
	Framework        *FrameworkReference  `json:"framework,omitempty"`
	Frameworks       []FrameworkReference `json:"frameworks,omitempty"`
	ConfigProperties map[string]any       `json:"configProperties,omitempty"`
}

// FrameworkReference names a shared framework and its minimum version.
type FrameworkReference struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// FrameworkReferences returns every referenced framework.
func (o RuntimeOptions) FrameworkReferences() []FrameworkReference {
	refs := make([]FrameworkReference, 0, len(o.Frameworks)+1)
	if o.Framework != nil {
		refs = append(refs, *o.Framework)
	}
	return append(refs, o.Frameworks...)
}

// ParseRuntimeConfig decodes a runtime configuration document. Comments are
// allowed, as hostfxr allows them. A self-contained config without framework
// references is accepted; hostfxr decides whether it can boot it.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	data, err := stripComments(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg RuntimeConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// ReadRuntimeConfig reads and checks the runtime configuration at path.
func ReadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	cfg, err := ParseRuntimeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// stripComments blanks out // and /* */ comments outside of string literals.
// Comment bytes become spaces (newlines are kept) so decoder offsets still
// point at the right place in the original document.
func stripComments(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)

	inString := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			start := i
			out[i], out[i+1] = ' ', ' '
			for i += 2; ; i++ {
				if i+1 >= len(out) {
					return nil, fmt.Errorf("unterminated comment at offset %d", start)
				}
				if out[i] == '*' && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		}
	}
	return out, nil
}
