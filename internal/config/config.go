// Package config assembles runtime configuration from, in increasing order
// of precedence: an optional YAML file, environment variables, and CLI
// flags. This mirrors the layering the indexer this project started from
// used (env-first with typed fallbacks), generalized to also accept a file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LevelRange is a parsed element of the --levels flag: either a single
// level (Start==End) or an inclusive range.
type LevelRange struct {
	Start uint32
	End   uint32
}

// Config is the fully merged runtime configuration (spec.md §6's CLI
// surface plus the database/logging knobs every subsystem needs).
type Config struct {
	ContractIDs []string `yaml:"contract_ids"`
	DatabaseURL string   `yaml:"database_url"`
	NodeURLs    []string `yaml:"node_urls"`
	BCDURL      string   `yaml:"bcd_url"`

	SSL    bool   `yaml:"ssl"`
	CACert string `yaml:"ca_cert"`

	Levels []LevelRange `yaml:"-"`

	Init bool `yaml:"-"`

	BatchSize     int `yaml:"batch_size"`
	FetcherPool   int `yaml:"fetcher_pool"`
	CommRetries   int `yaml:"comm_retries"`
	RequestTimout int `yaml:"request_timeout_seconds"`

	LogLevel       string `yaml:"log_level"`
	LogDevelopment bool   `yaml:"log_development"`

	HealthAddr string `yaml:"health_addr"`

	DenylistPath string   `yaml:"denylist_path"`
	Denylist     []string `yaml:"denylist"`

	DBMaxOpenConns int `yaml:"db_max_open_conns"`
	DBMaxIdleConns int `yaml:"db_max_idle_conns"`
}

// Defaults returns the baseline configuration before file/env/flag overrides.
func Defaults() Config {
	return Config{
		BatchSize:      50,
		FetcherPool:    4,
		CommRetries:    5,
		RequestTimout:  20,
		LogLevel:       "info",
		HealthAddr:     ":8089",
		DBMaxOpenConns: 10,
		DBMaxIdleConns: 5,
	}
}

// LoadFile reads an optional YAML config file and merges it over the
// given base (every field present in the file replaces base's value,
// fields absent from the file keep it; callers apply env and flags
// afterwards for correct precedence).
func LoadFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return base, nil
}

// ApplyEnv overlays environment variables on top of cfg, following the
// "present env var always wins" convention.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("CONTRACT_ID"); v != "" {
		cfg.ContractIDs = splitCSV(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("NODE_URL"); v != "" {
		cfg.NodeURLs = splitCSV(v)
	}
	if v := os.Getenv("BCD_URL"); v != "" {
		cfg.BCDURL = v
	}
	if v := os.Getenv("SSL"); v != "" {
		cfg.SSL = v == "true"
	}
	if v := os.Getenv("CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("FETCHER_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetcherPool = n
		}
	}
	if v := os.Getenv("COMM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CommRetries = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HEALTH_ADDR"); v != "" {
		cfg.HealthAddr = v
	}
	if v := os.Getenv("DENYLIST_PATH"); v != "" {
		cfg.DenylistPath = v
	}
	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBMaxOpenConns = n
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBMaxIdleConns = n
		}
	}
	return cfg
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLevels parses spec.md §6's "--levels <ranges>" syntax, e.g.
// "1,5-10,20".
func ParseLevels(s string) ([]LevelRange, error) {
	if s == "" {
		return nil, nil
	}
	var out []LevelRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '-'); i >= 0 {
			startS, endS := part[:i], part[i+1:]
			start, err := strconv.ParseUint(startS, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid level range %q: %w", part, err)
			}
			end, err := strconv.ParseUint(endS, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid level range %q: %w", part, err)
			}
			out = append(out, LevelRange{Start: uint32(start), End: uint32(end)})
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", part, err)
		}
		out = append(out, LevelRange{Start: uint32(n), End: uint32(n)})
	}
	return out, nil
}

// Validate checks the minimal set of fields every run needs, returning a
// configuration-kind error (spec.md §7: "Configuration → exit immediately").
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}
	if len(c.ContractIDs) == 0 {
		return fmt.Errorf("at least one contract id is required (--contract-id or CONTRACT_ID)")
	}
	if len(c.NodeURLs) == 0 {
		return fmt.Errorf("at least one node URL is required (--node-url or NODE_URL)")
	}
	return nil
}

// RedactDatabaseURL masks the password and strips query parameters from a
// database URL before it is logged, preserving user name and
// scheme/host/path for debuggability.
func RedactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		u.RawQuery = ""
		return u.String()
	}

	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
