package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "WARMSETD_"

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv builds a partial Config from WARMSETD_* variables. lookup is
// usually os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var cfg Config
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	integer := func(name string, bits int, set func(int64)) {
		if v, ok := get(name); ok {
			n, err := strconv.ParseInt(v, 10, bits)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			set(n)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := get(name); ok {
			*dst = SplitCSV(v)
		}
	}

	str("ADDR", &cfg.Addr)
	str("REPO_URL", &cfg.RepoURL)
	str("REPO_DIR", &cfg.RepoDir)
	str("BIND_ON_START", &cfg.BindOnStart)
	str("SNAPSHOT_PATH", &cfg.SnapshotPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	integer("REPO_TIMEOUT_SECONDS", 32, func(n int64) { cfg.RepoTimeoutSeconds = int(n) })
	integer("CACHE_BUDGET_BYTES", 64, func(n int64) { cfg.CacheBudgetBytes = n })
	integer("PREFETCH_DEPTH", 32, func(n int64) {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%sPREFETCH_DEPTH: must not be negative", EnvPrefix))
			return
		}
		cfg.PrefetchDepth = uint32(n)
	})
	integer("DEFAULT_MAX_TOKENS", 32, func(n int64) { cfg.DefaultMaxTokens = int(n) })
	integer("MAX_BODY_BYTES", 64, func(n int64) { cfg.MaxBodyBytes = n })
	integer("REQUEST_TIMEOUT_SECONDS", 32, func(n int64) { cfg.RequestTimeoutSeconds = int(n) })
	boolean("BLOCK_ON_QUALITY_FAILURE", &cfg.BlockOnQualityFailure)
	boolean("CORS_ENABLED", &cfg.CORSEnabled)
	list("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	list("CORS_ALLOWED_METHODS", &cfg.CORSAllowedMethods)
	list("CORS_ALLOWED_HEADERS", &cfg.CORSAllowedHeaders)
	return cfg, errors.Join(errs...)
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty items.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
