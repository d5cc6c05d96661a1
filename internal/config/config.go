// Package config holds the collaborator tool configuration: which compiler,
// linker and symbolic-execution engine to run and how to invoke them.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Argv templates support a small set of placeholders filled in per run:
// {source}, {output}, {trapmap}, {inputs}, {module}, {rules}.
const (
	DefaultCompiler = "p4c-bm2-ss {source} --toJSON {output} --trap-map {trapmap}"
	DefaultLinker   = "llvm-link {inputs} -o {output}"
	DefaultEngine   = "klee-assert-shim --search=dfs {module}"
	DefaultRuntime  = "/usr/share/assert-p4/assert_runtime.bc"

	DefaultCompileTimeout = 60 * time.Second
	DefaultLinkTimeout    = 120 * time.Second
)

type Config struct {
	Compiler string `yaml:"compiler"`
	Linker   string `yaml:"linker"`
	Engine   string `yaml:"engine"`
	// Runtime is the assertion-runtime support bitcode linked into every
	// lowered module.
	Runtime string `yaml:"runtime"`

	CompileTimeout time.Duration `yaml:"compile_timeout"`
	LinkTimeout    time.Duration `yaml:"link_timeout"`
}

func Default() *Config {
	return &Config{
		Compiler:       DefaultCompiler,
		Linker:         DefaultLinker,
		Engine:         DefaultEngine,
		Runtime:        DefaultRuntime,
		CompileTimeout: DefaultCompileTimeout,
		LinkTimeout:    DefaultLinkTimeout,
	}
}

// Load reads a YAML config file and applies defaults for absent fields.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Compiler == "" {
		c.Compiler = DefaultCompiler
	}
	if c.Linker == "" {
		c.Linker = DefaultLinker
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.CompileTimeout <= 0 {
		c.CompileTimeout = DefaultCompileTimeout
	}
	if c.LinkTimeout <= 0 {
		c.LinkTimeout = DefaultLinkTimeout
	}
}

// Argv expands an argv template, substituting placeholders from vars.
// A multi-valued placeholder ({inputs}) expands to one argument per value.
func Argv(template string, vars map[string][]string) []string {
	fields := strings.Fields(template)
	argv := make([]string, 0, len(fields))
	for _, f := range fields {
		if vals, ok := vars[f]; ok {
			argv = append(argv, vals...)
			continue
		}
		argv = append(argv, f)
	}
	return argv
}
