package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".wincore"
	configFile string = "config.yml"

	// DefaultTextOffsetCacheSize is the number of PE files whose .text
	// offset is remembered by the module enumerator.
	DefaultTextOffsetCacheSize = 64
	// DefaultMaxThreadName is the maximum number of characters of a thread
	// name read from a snapshot.
	DefaultMaxThreadName = 79
)

// SubstitutePathRule describes a rule for substitution of a module path
// found in a snapshot.
type SubstitutePathRule struct {
	// Directory path will be substituted if it matches `From`.
	From string
	// Path to which substitution is performed.
	To string
}

// SubstitutePathRules is a slice of path substitution rules.
type SubstitutePathRules []SubstitutePathRule

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`
	// Module path substitution rules, applied to module names read from
	// snapshots before they are looked up on disk.
	SubstitutePath SubstitutePathRules `yaml:"substitute-path"`

	// ShowAllTIB makes 'info w32 tib' read the whole thread information
	// block and print every non-zero slot.
	ShowAllTIB bool `yaml:"show-all-tib"`

	// MaxThreadName is the maximum length of a thread name read from a
	// snapshot.
	MaxThreadName *int `yaml:"max-thread-name,omitempty"`

	// SymbolPath is the list of directories searched when resolving the
	// module names recorded in a snapshot.
	SymbolPath []string `yaml:"symbol-path"`

	// TextOffsetCacheSize is the number of PE files whose .text offset is
	// cached.
	TextOffsetCacheSize *int `yaml:"text-offset-cache-size,omitempty"`

	// HistoryFile overrides the location of the terminal history file.
	HistoryFile string `yaml:"history-file,omitempty"`
}

// GetMaxThreadName returns the configured maximum thread name length.
func (c *Config) GetMaxThreadName() int {
	if c == nil || c.MaxThreadName == nil || *c.MaxThreadName <= 0 {
		return DefaultMaxThreadName
	}
	return *c.MaxThreadName
}

// GetTextOffsetCacheSize returns the configured size of the .text offset cache.
func (c *Config) GetTextOffsetCacheSize() int {
	if c == nil || c.TextOffsetCacheSize == nil || *c.TextOffsetCacheSize <= 0 {
		return DefaultTextOffsetCacheSize
	}
	return *c.TextOffsetCacheSize
}

// SubstitutePathFn returns a function applying the substitution rules.
func (c *Config) SubstitutePathFn() func(string) string {
	if c == nil || len(c.SubstitutePath) == 0 {
		return nil
	}
	rules := c.SubstitutePath
	return func(p string) string {
		return SubstitutePath(p, rules)
	}
}

// LoadConfig reads config.yml from the configuration directory, creating
// the directory and a commented default file the first time. Problems are
// reported on stderr and yield an empty configuration.
func LoadConfig() *Config {
	c, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load configuration: %v\n", err)
		return &Config{}
	}
	return c
}

func load() (*Config, error) {
	dir, err := GetConfigFilePath("")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating %s: %v", dir, err)
	}
	file := filepath.Join(dir, configFile)
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte(defaultConfig)
		err = os.WriteFile(file, data, 0600)
	}
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %v", file, err)
	}
	return c, nil
}

// Parse decodes a configuration file.
func Parse(data []byte) (*Config, error) {
	c := new(Config)
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveConfig writes conf to config.yml, replacing the comments of the
// default file.
func SaveConfig(conf *Config) error {
	file, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	return os.WriteFile(file, out, 0600)
}

const defaultConfig = `# Configuration file for wincore.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Rewrite module paths recorded in a snapshot before they are opened, for
# example when the snapshot was taken on another machine.
substitute-path:
  # - {from: 'C:\Windows\System32', to: /mnt/win/Windows/System32}

# Uncomment to make 'info w32 tib' print every non-zero slot of the
# thread information block.
# show-all-tib: true

# Maximum number of characters of a thread name read from a snapshot.
# max-thread-name: 79

# Directories searched for the modules named in a snapshot.
symbol-path: []

# Number of PE files whose .text offset is cached.
# text-offset-cache-size: 64
`

// GetConfigFilePath returns the path of file inside the configuration
// directory, $HOME/.wincore. The current directory stands in for $HOME
// when the user is unknown.
func GetConfigFilePath(file string) (string, error) {
	home := "."
	if usr, err := user.Current(); err == nil {
		home = usr.HomeDir
	}
	return filepath.Join(home, configDir, file), nil
}
