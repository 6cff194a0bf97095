// Package appctx holds the application context handed to the host
// runtime: identifiers, window definitions and capability scopes. The
// document is embedded at build time and otherwise treated as opaque by
// the bootstrapper.
package appctx

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed app.yaml
var embedded []byte

var ErrInvalidContext = errors.New("invalid application context")

type Context struct {
	Identifier  string   `yaml:"identifier" validate:"required,hostname_rfc1123"`
	ProductName string   `yaml:"product_name" validate:"required"`
	Version     string   `yaml:"version" validate:"required"`
	Windows     []Window `yaml:"windows" validate:"required,min=1,dive"`
	FS          FSScope  `yaml:"fs"`
	Shell       Shell    `yaml:"shell"`
}

type Window struct {
	Label     string  `yaml:"label" validate:"required"`
	Title     string  `yaml:"title"`
	Width     float32 `yaml:"width" validate:"gte=0"`
	Height    float32 `yaml:"height" validate:"gte=0"`
	Resizable bool    `yaml:"resizable"`
	Center    bool    `yaml:"center"`
}

// FSScope lists the directory roots the filesystem capability may touch.
// Entries may start with a base directory variable such as $HOME.
type FSScope struct {
	Scope []string `yaml:"scope" validate:"dive,required"`
}

type Shell struct {
	Open  bool           `yaml:"open"`
	Scope []ShellCommand `yaml:"scope" validate:"dive"`
}

// ShellCommand names one program the frontend may run. Each positional
// argument is either fixed or checked against a regular expression. Env
// lists the variable names a caller may set; everything else is refused.
type ShellCommand struct {
	Name    string     `yaml:"name" validate:"required"`
	Cmd     string     `yaml:"cmd" validate:"required"`
	Args    []ShellArg `yaml:"args" validate:"dive"`
	AnyArgs bool       `yaml:"any_args"`
	Env     []string   `yaml:"env" validate:"dive,required"`
}

type ShellArg struct {
	Value     string `yaml:"value" validate:"required_without=Validator"`
	Validator string `yaml:"validator" validate:"required_without=Value"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses the context embedded in the binary.
func Load() (*Context, error) {
	return Parse(embedded)
}

func Parse(data []byte) (*Context, error) {
	var c Context
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}

	labels := make(map[string]struct{}, len(c.Windows))
	for _, w := range c.Windows {
		if _, dup := labels[w.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate window label %q", ErrInvalidContext, w.Label)
		}
		labels[w.Label] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.Shell.Scope))
	for _, sc := range c.Shell.Scope {
		if _, dup := names[sc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate shell scope %q", ErrInvalidContext, sc.Name)
		}
		names[sc.Name] = struct{}{}
	}

	return &c, nil
}

// MainWindow is the first declared window.
func (c *Context) MainWindow() Window {
	return c.Windows[0]
}
