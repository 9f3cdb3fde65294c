// Package config holds the settings of the engine daemon. Settings come from
// a TOML file and can be overridden with environment variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

type Config struct {
	// Number of partitions of every dataset.
	Parallelism int `toml:"parallelism"`
	// Ordered disk directory, used to spill computed collections.
	DataDir string `toml:"data_dir"`
	// Unordered disk directory, for exchanging collections with other tools.
	UnorderedDataDir string `toml:"unordered_data_dir"`
	Port             int    `toml:"port"`
	// Directory with cert.pem and private-key.pem. TLS is off without it.
	CertDir       string   `toml:"cert_dir"`
	CacheMaxMemMB int      `toml:"cache_max_mem_mb"`
	LogLevel      string   `toml:"log_level"`
	Sampling      Sampling `toml:"sampling"`
}

type Sampling struct {
	// Default seed of RandomNodeSampling requests that have none. Unset means
	// unseeded.
	Seed *int64 `toml:"seed"`
}

func Default() *Config {
	return &Config{
		Parallelism:      runtime.NumCPU(),
		DataDir:          "data/ordered",
		UnorderedDataDir: "data/unordered",
		Port:             5551,
		CacheMaxMemMB:    1 * 1024,
		LogLevel:         "info",
	}
}

// Load reads the TOML file at path over the defaults and applies the
// environment overrides. With an empty path only the defaults and the
// environment are used. Relative directories in the file are relative to the
// file itself.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, errors.Annotatef(err, "could not decode TOML config %v", path)
		}
		c.convertPathsToAbsolute(path)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) convertPathsToAbsolute(configPath string) {
	configDir := filepath.Dir(configPath)
	for _, p := range []*string{&c.DataDir, &c.UnorderedDataDir, &c.CertDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ORDERED_EPGM_DATA_DIR":   &c.DataDir,
		"UNORDERED_EPGM_DATA_DIR": &c.UnorderedDataDir,
		"EPGM_CERT_DIR":           &c.CertDir,
		"EPGM_LOG_LEVEL":          &c.LogLevel,
	}
	for key, p := range strs {
		if v, ok := lookup(key); ok {
			*p = v
		}
	}
	ints := map[string]*int{
		"EPGM_PORT":                       &c.Port,
		"EPGM_PARALLELISM":                &c.Parallelism,
		"EPGM_CACHED_ENTITIES_MAX_MEM_MB": &c.CacheMaxMemMB,
	}
	for key, p := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.NotValidf("environment variable %v=%q", key, v)
			}
			*p = n
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return errors.NotValidf("parallelism %d", c.Parallelism)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.NotValidf("port %d", c.Port)
	}
	if c.CacheMaxMemMB < 1 {
		return errors.NotValidf("cache size %d MB", c.CacheMaxMemMB)
	}
	if c.DataDir == "" || c.UnorderedDataDir == "" {
		return errors.NotValidf("empty data directory")
	}
	return nil
}

// SamplingSeed returns a copy of the configured default sampling seed, or nil.
func (c *Config) SamplingSeed() *int64 {
	if c.Sampling.Seed == nil {
		return nil
	}
	s := *c.Sampling.Seed
	return &s
}
