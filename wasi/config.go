package wasi

import (
	stderrors "errors"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-sandbox/errors"
)

// Config is the set of capabilities granted to one instance. The zero value
// grants nothing: no filesystem, no environment, no arguments, no stdio.
type Config struct {
	// Preopens maps guest directory paths to host directories.
	Preopens map[string]string `json:"preopens,omitempty" yaml:"preopens,omitempty" validate:"dive,keys,startswith=/,endkeys,required"`

	// ReadOnly lists guest paths from Preopens that reject writes.
	ReadOnly []string `json:"readOnly,omitempty" yaml:"readOnly,omitempty" validate:"dive,startswith=/"`

	Env  map[string]string `json:"env,omitempty" yaml:"env,omitempty" validate:"dive,keys,required,excludesall==,endkeys"`
	Args []string          `json:"args,omitempty" yaml:"args,omitempty"`

	InheritStdin  bool `json:"inheritStdin,omitempty" yaml:"inheritStdin,omitempty"`
	InheritStdout bool `json:"inheritStdout,omitempty" yaml:"inheritStdout,omitempty"`
	InheritStderr bool `json:"inheritStderr,omitempty" yaml:"inheritStderr,omitempty"`
}

// NewConfig creates an empty, deny-everything configuration.
func NewConfig() *Config {
	return &Config{}
}

// WithPreopen grants the guest access to hostDir at guestPath.
func (c *Config) WithPreopen(guestPath, hostDir string) *Config {
	if c.Preopens == nil {
		c.Preopens = make(map[string]string)
	}
	c.Preopens[guestPath] = hostDir
	return c
}

// WithReadOnlyPreopen grants read-only access to hostDir at guestPath.
func (c *Config) WithReadOnlyPreopen(guestPath, hostDir string) *Config {
	c.WithPreopen(guestPath, hostDir)
	c.ReadOnly = append(c.ReadOnly, guestPath)
	return c
}

// WithEnv sets one environment variable.
func (c *Config) WithEnv(key, value string) *Config {
	if c.Env == nil {
		c.Env = make(map[string]string)
	}
	c.Env[key] = value
	return c
}

// WithArgs sets the guest's argv.
func (c *Config) WithArgs(args ...string) *Config {
	c.Args = args
	return c
}

// WithInheritedStdio toggles inheritance of the host's standard streams.
func (c *Config) WithInheritedStdio(stdin, stdout, stderr bool) *Config {
	c.InheritStdin = stdin
	c.InheritStdout = stdout
	c.InheritStderr = stderr
	return c
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Preopens = maps.Clone(c.Preopens)
	out.Env = maps.Clone(c.Env)
	out.Args = slices.Clone(c.Args)
	out.ReadOnly = slices.Clone(c.ReadOnly)
	return &out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration shape. Host directories are checked
// when the capability context is built.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wasi(describeValidation(err), err)
	}

	seen := make(map[string]string, len(c.Preopens))
	for guest := range c.Preopens {
		clean := path.Clean(guest)
		if prev, dup := seen[clean]; dup {
			return errors.Wasi(fmt.Sprintf("guest paths %q and %q resolve to the same mount", prev, guest), nil)
		}
		seen[clean] = guest
	}
	for _, ro := range c.ReadOnly {
		if _, ok := seen[path.Clean(ro)]; !ok {
			return errors.Wasi(fmt.Sprintf("read-only path %q is not a preopen", ro), nil)
		}
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return "invalid capability config"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Preopens":
			msgs = append(msgs, fmt.Sprintf("preopen %s must be an absolute guest path with a host directory", fe.Namespace()))
		case "Env":
			msgs = append(msgs, fmt.Sprintf("env %s must be a non-empty key without '='", fe.Namespace()))
		case "ReadOnly":
			msgs = append(msgs, fmt.Sprintf("read-only %s must be an absolute guest path", fe.Namespace()))
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

// LoadConfig decodes a YAML (or JSON) capability document. Unknown keys are
// rejected so typos do not silently drop grants.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if stderrors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, errors.Wasi("decode capability config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
