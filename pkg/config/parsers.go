package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EnvResult holds the results of applying environment overrides.
type EnvResult struct {
	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}
	EnvUsed     bool
}

// EffectiveConfigResult holds the resolved config, addr and db path
// plus which source won ("flags", "config", or "env").
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string
}

// ParseConfigFlags parses command-line flags and records which were
// explicitly set.
func ParseConfigFlags() Flags {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	db := flag.String("db", "./.database", "Pebble DB path")
	cfgPath := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DB: *db, Config: *cfgPath, Set: set}
}

// ParseConfigFile resolves the config path and loads the YAML file.
// A missing file is not an error unless the path was explicit; that
// check happens in LoadEffectiveConfig.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads HUDDLE_* environment variables into a fresh
// Config and reports which key material they carried. The caller's
// config is never mutated.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	envUsed := false

	lookup := func(name string) (string, bool) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return "", false
		}
		envUsed = true
		return v, true
	}
	splitList := func(v string) []string {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	if v, ok := lookup("HUDDLE_ADDR"); ok {
		if host, port, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = host
			if n, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = n
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host, ok := lookup("HUDDLE_SERVER_ADDRESS"); ok {
			envCfg.Server.Address = host
		}
		if port, ok := lookup("HUDDLE_SERVER_PORT"); ok {
			if n, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = n
			}
		}
	}

	if v, ok := lookup("HUDDLE_DB_PATH"); ok {
		envCfg.Server.DBPath = v
	}
	if v, ok := lookup("HUDDLE_TLS_CERT"); ok {
		envCfg.Server.TLS.CertFile = v
	}
	if v, ok := lookup("HUDDLE_TLS_KEY"); ok {
		envCfg.Server.TLS.KeyFile = v
	}

	if v, ok := lookup("HUDDLE_CORS_ORIGINS"); ok {
		envCfg.Security.CORS.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("HUDDLE_RATE_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v, ok := lookup("HUDDLE_RATE_BURST"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v, ok := lookup("HUDDLE_IP_WHITELIST"); ok {
		envCfg.Security.IPWhitelist = splitList(v)
	}
	if v, ok := lookup("HUDDLE_API_BACKEND_KEYS"); ok {
		envCfg.Security.APIKeys.Backend = splitList(v)
	}
	if v, ok := lookup("HUDDLE_API_FRONTEND_KEYS"); ok {
		envCfg.Security.APIKeys.Frontend = splitList(v)
	}
	if v, ok := lookup("HUDDLE_API_ADMIN_KEYS"); ok {
		envCfg.Security.APIKeys.Admin = splitList(v)
	}
	if v, ok := lookup("HUDDLE_MODERATORS"); ok {
		envCfg.Chat.Moderators = splitList(v)
	}

	// backend keys double as signing keys when supplied via env
	backend := make(map[string]struct{}, len(envCfg.Security.APIKeys.Backend))
	for _, k := range envCfg.Security.APIKeys.Backend {
		backend[k] = struct{}{}
	}
	return envCfg, EnvResult{
		BackendKeys: backend,
		SigningKeys: copyKeySet(backend),
		EnvUsed:     envUsed,
	}
}

// LoadEffectiveConfig picks a single winning source. An explicit
// --config wins and requires the file to exist; explicit addr/db flags
// win next; then a present config file; then env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	if flags.Set["config"] {
		if !fileExists {
			return EffectiveConfigResult{}, fmt.Errorf("config file %s not found", flags.Config)
		}
		return fromConfig(fileCfg, "config"), nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		return fromFlags(flags, fileCfg, fileExists, envCfg), nil
	}

	if fileExists {
		return fromConfig(fileCfg, "config"), nil
	}
	return fromConfig(envCfg, "env"), nil
}

func fromConfig(cfg *Config, source string) EffectiveConfigResult {
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   cfg.Addr(),
		DBPath: cfg.Server.DBPath,
		Source: source,
	}
}

func fromFlags(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) EffectiveConfigResult {
	addr := flags.Addr
	if !flags.Set["addr"] {
		addr = envCfg.Addr()
		if addr == "" {
			addr = fileCfg.Addr()
		}
	}
	dbPath := flags.DB
	if !flags.Set["db"] {
		if p := strings.TrimSpace(envCfg.Server.DBPath); p != "" {
			dbPath = p
		} else if p := strings.TrimSpace(fileCfg.Server.DBPath); p != "" {
			dbPath = p
		}
	}

	out := &Config{}
	out.Server.Address = addr
	out.Server.Port = parsePortFromAddr(addr)
	out.Server.DBPath = dbPath
	// chat, security and retention settings have no flag equivalents;
	// carry them from whichever secondary source provided them
	if fileExists {
		out.Chat = fileCfg.Chat
		out.Security = fileCfg.Security
		out.Retention = fileCfg.Retention
	} else {
		out.Chat = envCfg.Chat
		out.Security = envCfg.Security
	}
	return EffectiveConfigResult{Config: out, Addr: addr, DBPath: dbPath, Source: "flags"}
}

func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 0
}
