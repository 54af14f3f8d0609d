package config

import (
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Defaults returns the configuration used for unspecified fields.
func Defaults() Config {
	return Config{
		Addr:               ":8080",
		RepoTimeoutSeconds: 30,
		CacheBudgetBytes:   100 * 1024 * 1024,
		PrefetchDepth:      2,
		DefaultMaxTokens:   128,
		LogLevel:           "info",
		MaxBodyBytes:       1 << 20,
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Log-Level", "X-Request-Id"},
	}
}

// Merge returns base with every non-zero field of over applied on top.
// Booleans can only be switched on by over.
func Merge(base, over Config) Config {
	out := base
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&out.Addr, over.Addr)
	setStr(&out.RepoURL, over.RepoURL)
	setStr(&out.RepoDir, over.RepoDir)
	setStr(&out.BindOnStart, over.BindOnStart)
	setStr(&out.SnapshotPath, over.SnapshotPath)
	setStr(&out.LogLevel, over.LogLevel)
	if over.RepoTimeoutSeconds != 0 {
		out.RepoTimeoutSeconds = over.RepoTimeoutSeconds
	}
	if over.CacheBudgetBytes != 0 {
		out.CacheBudgetBytes = over.CacheBudgetBytes
	}
	if over.PrefetchDepth != 0 {
		out.PrefetchDepth = over.PrefetchDepth
	}
	if over.DefaultMaxTokens != 0 {
		out.DefaultMaxTokens = over.DefaultMaxTokens
	}
	if over.MaxBodyBytes != 0 {
		out.MaxBodyBytes = over.MaxBodyBytes
	}
	if over.RequestTimeoutSeconds != 0 {
		out.RequestTimeoutSeconds = over.RequestTimeoutSeconds
	}
	out.BlockOnQualityFailure = out.BlockOnQualityFailure || over.BlockOnQualityFailure
	out.CORSEnabled = out.CORSEnabled || over.CORSEnabled
	if len(over.CORSAllowedOrigins) > 0 {
		out.CORSAllowedOrigins = append([]string(nil), over.CORSAllowedOrigins...)
	}
	if len(over.CORSAllowedMethods) > 0 {
		out.CORSAllowedMethods = append([]string(nil), over.CORSAllowedMethods...)
	}
	if len(over.CORSAllowedHeaders) > 0 {
		out.CORSAllowedHeaders = append([]string(nil), over.CORSAllowedHeaders...)
	}
	return out
}

var logLevels = []any{"trace", "debug", "info", "warn", "error", "off"}

// Validate checks a merged configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.RepoURL, is.URL, validation.By(httpScheme)),
		validation.Field(&c.RepoTimeoutSeconds, validation.Min(0), validation.Max(3600)),
		validation.Field(&c.CacheBudgetBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.PrefetchDepth, validation.Max(uint32(1<<16))),
		validation.Field(&c.DefaultMaxTokens, validation.Min(1), validation.Max(256)),
		validation.Field(&c.LogLevel, validation.In(logLevels...)),
		validation.Field(&c.MaxBodyBytes, validation.Min(int64(0))),
		validation.Field(&c.RequestTimeoutSeconds, validation.Min(0), validation.Max(3600)),
		validation.Field(&c.CORSAllowedOrigins, validation.When(c.CORSEnabled, validation.Required)),
	)
	if err != nil {
		return err
	}
	if c.RepoURL != "" && c.RepoDir != "" {
		return errors.New("repo_url and repo_dir are mutually exclusive")
	}
	return nil
}

func httpScheme(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return validation.NewError("validation_repo_scheme", "must use http or https")
	}
	return nil
}
