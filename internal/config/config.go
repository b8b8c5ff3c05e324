package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Strict         bool
	Timeout        time.Duration
	Retries        int
	MaxStale       time.Duration
	NoStale        bool
	CacheEnabled   bool
	CachePath      string
	CacheLockPath  string
	StorePath      string
	StoreLockPath  string

	// Routing service.
	LiFiBaseURL string
	LiFiAPIKey  string
	Integrator  string
	SlippageBps int64

	// Execution engine.
	PollInterval   time.Duration
	ConfirmTimeout time.Duration

	// Invoice parsing model.
	ParserBaseURL string
	ParserAPIKey  string
	ParserModel   string

	// ENS lookups run against mainnet regardless of payment chain.
	ENSRPCURL string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Strict  *bool  `yaml:"strict"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Cache   struct {
		Enabled  *bool  `yaml:"enabled"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Routing struct {
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		APIKeyEnv   string `yaml:"api_key_env"`
		Integrator  string `yaml:"integrator"`
		SlippageBps *int64 `yaml:"slippage_bps"`
	} `yaml:"routing"`
	Execution struct {
		PollInterval   string `yaml:"poll_interval"`
		ConfirmTimeout string `yaml:"confirm_timeout"`
	} `yaml:"execution"`
	Parser struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		Model     string `yaml:"model"`
	} `yaml:"parser"`
	ENS struct {
		RPCURL string `yaml:"rpc_url"`
	} `yaml:"ens"`
}

func Load(flags GlobalFlags) (Settings, error) {
	// A .env in the working directory supplies keys during development;
	// absence is not an error.
	_ = godotenv.Load()

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.SlippageBps <= 0 {
		settings.SlippageBps = 50
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 10 * time.Minute
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:     "json",
		Timeout:        10 * time.Second,
		Retries:        2,
		MaxStale:       5 * time.Minute,
		CacheEnabled:   true,
		CachePath:      cachePath,
		CacheLockPath:  lockPath,
		StorePath:      filepath.Join(cacheDir, "payflow.db"),
		StoreLockPath:  filepath.Join(cacheDir, "payflow.lock"),
		LiFiBaseURL:    "https://li.quest/v1",
		Integrator:     "payflow",
		SlippageBps:    50,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 10 * time.Minute,
		ParserBaseURL:  "https://api.openai.com/v1",
		ParserModel:    "gpt-4o-mini",
		ENSRPCURL:      "https://eth.llamarpc.com",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "payflow", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "payflow")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.MaxStale != "" {
		d, err := time.ParseDuration(cfg.Cache.MaxStale)
		if err != nil {
			return fmt.Errorf("config cache.max_stale: %w", err)
		}
		settings.MaxStale = d
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	if cfg.Routing.BaseURL != "" {
		settings.LiFiBaseURL = cfg.Routing.BaseURL
	}
	if cfg.Routing.APIKey != "" {
		settings.LiFiAPIKey = cfg.Routing.APIKey
	}
	if cfg.Routing.APIKeyEnv != "" {
		settings.LiFiAPIKey = os.Getenv(cfg.Routing.APIKeyEnv)
	}
	if cfg.Routing.Integrator != "" {
		settings.Integrator = cfg.Routing.Integrator
	}
	if cfg.Routing.SlippageBps != nil {
		settings.SlippageBps = *cfg.Routing.SlippageBps
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Execution.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config execution.confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Parser.BaseURL != "" {
		settings.ParserBaseURL = cfg.Parser.BaseURL
	}
	if cfg.Parser.APIKey != "" {
		settings.ParserAPIKey = cfg.Parser.APIKey
	}
	if cfg.Parser.APIKeyEnv != "" {
		settings.ParserAPIKey = os.Getenv(cfg.Parser.APIKeyEnv)
	}
	if cfg.Parser.Model != "" {
		settings.ParserModel = cfg.Parser.Model
	}
	if cfg.ENS.RPCURL != "" {
		settings.ENSRPCURL = cfg.ENS.RPCURL
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("PAYFLOW_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("PAYFLOW_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Strict = b
		}
	}
	if v := os.Getenv("PAYFLOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("PAYFLOW_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("PAYFLOW_MAX_STALE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxStale = d
		}
	}
	if v := os.Getenv("PAYFLOW_NO_STALE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NoStale = b
		}
	}
	if v := os.Getenv("PAYFLOW_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("PAYFLOW_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("PAYFLOW_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("PAYFLOW_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("PAYFLOW_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("PAYFLOW_LIFI_BASE_URL"); v != "" {
		settings.LiFiBaseURL = v
	}
	if v := os.Getenv("PAYFLOW_LIFI_API_KEY"); v != "" {
		settings.LiFiAPIKey = v
	}
	if v := os.Getenv("PAYFLOW_INTEGRATOR"); v != "" {
		settings.Integrator = v
	}
	if v := os.Getenv("PAYFLOW_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("PAYFLOW_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("PAYFLOW_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if v := os.Getenv("PAYFLOW_PARSER_BASE_URL"); v != "" {
		settings.ParserBaseURL = v
	}
	if v := os.Getenv("PAYFLOW_PARSER_API_KEY"); v != "" {
		settings.ParserAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && settings.ParserAPIKey == "" {
		settings.ParserAPIKey = v
	}
	if v := os.Getenv("PAYFLOW_PARSER_MODEL"); v != "" {
		settings.ParserModel = v
	}
	if v := os.Getenv("PAYFLOW_ENS_RPC_URL"); v != "" {
		settings.ENSRPCURL = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		parts := strings.Split(flags.EnableCommands, ",")
		allowed := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				allowed = append(allowed, v)
			}
		}
		settings.EnableCommands = allowed
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
