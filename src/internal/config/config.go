package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Runtime    RuntimeConfig  `mapstructure:"runtime" json:"runtime"`
	Pipeline   PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Server     ServerConfig   `mapstructure:"server" json:"server"`
	StorageDir string         `mapstructure:"storage_dir" json:"storage_dir"`
	SkillsDir  string         `mapstructure:"skills_dir" json:"skills_dir"`
	ClawHub    ClawHubConfig  `mapstructure:"clawhub" json:"clawhub"`
	Channels   ChannelsConfig `mapstructure:"channels" json:"channels"`

	refs secretRefs
}

// secretRefs are the $VAR placeholders the secrets were loaded from.
type secretRefs struct {
	key         string
	adminPass   string
	ircPassword string
}

// RuntimeConfig overrides the interpreter candidates. Empty values keep
// the defaults derived from the skills and storage directories.
type RuntimeConfig struct {
	BundledEnv   string        `mapstructure:"bundled_env" json:"bundled_env"`
	SystemPython string        `mapstructure:"system_python" json:"system_python"`
	UserEnv      string        `mapstructure:"user_env" json:"user_env"`
	Module       string        `mapstructure:"module" json:"module"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" json:"probe_timeout"`
}

type PipelineConfig struct {
	CompareSkill  string        `mapstructure:"compare_skill" json:"compare_skill"`
	CompareScript string        `mapstructure:"compare_script" json:"compare_script"`
	ReportScript  string        `mapstructure:"report_script" json:"report_script"`
	ChemSkill     string        `mapstructure:"chem_skill" json:"chem_skill"`
	PharmaSkill   string        `mapstructure:"pharma_skill" json:"pharma_skill"`
	CatalystSkill string        `mapstructure:"catalyst_skill" json:"catalyst_skill"`
	OutputPrefix  string        `mapstructure:"output_prefix" json:"output_prefix"`
	ScriptTimeout time.Duration `mapstructure:"script_timeout" json:"script_timeout"`
	Concurrency   int           `mapstructure:"concurrency" json:"concurrency"`
}

type ServerConfig struct {
	Addr          string          `mapstructure:"addr" json:"addr"`
	Key           string          `mapstructure:"key" json:"key"`
	AdminUser     string          `mapstructure:"admin_user" json:"admin_user"`
	AdminPass     string          `mapstructure:"admin_pass" json:"admin_pass,omitempty"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
	EffectiveHost string          `mapstructure:"-" json:"effectiveHost"`
	Port          int             `mapstructure:"-" json:"port"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second" json:"per_second"`
	Burst     int     `mapstructure:"burst" json:"burst"`
}

type ClawHubConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

type IRCConfig struct {
	Enabled   bool     `mapstructure:"enabled" json:"enabled"`
	Server    string   `mapstructure:"server" json:"server"`
	Port      int      `mapstructure:"port" json:"port"`
	Nick      string   `mapstructure:"nick" json:"nick"`
	Password  string   `mapstructure:"password" json:"password,omitempty"`
	Channel   string   `mapstructure:"channel" json:"channel"`
	UseTLS    bool     `mapstructure:"use_tls" json:"use_tls"`
	Allowlist []string `mapstructure:"allowlist" json:"allowlist,omitempty"` // nicks allowed to send commands
}

type ChannelsConfig struct {
	IRC IRCConfig `mapstructure:"irc" json:"irc"`
}

const envStorageDir = "PHARMACLAW_STORAGE_DIR"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.admin_user", "admin")
	v.SetDefault("server.rate_limit.per_second", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("runtime.system_python", "python3")
	v.SetDefault("runtime.module", "rdkit")
	v.SetDefault("runtime.probe_timeout", 15*time.Second)
	v.SetDefault("pipeline.compare_skill", "pharmaclaw-compound-comparator")
	v.SetDefault("pipeline.compare_script", "compare_compounds.py")
	v.SetDefault("pipeline.report_script", "generate_report.py")
	v.SetDefault("pipeline.chem_skill", "chemistry-query")
	v.SetDefault("pipeline.pharma_skill", "pharmacology-agent")
	v.SetDefault("pipeline.catalyst_skill", "catalyst")
	v.SetDefault("pipeline.output_prefix", "comparison_report")
	v.SetDefault("pipeline.script_timeout", 30*time.Second)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("clawhub.base_url", "https://clawhub.ai")
	v.SetDefault("channels.irc.port", 6697)
	v.SetDefault("channels.irc.nick", "pharmaclaw")
	v.SetDefault("channels.irc.use_tls", true)
}

// Load reads config.yaml from the application directory, or from override
// when it is set. A missing file is not an error.
func Load(override string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	appDir := filepath.Join(home, ".pharmaclaw")
	if envDir := os.Getenv(envStorageDir); envDir != "" {
		appDir = envDir
	}
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PHARMACLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if override != "" {
		v.SetConfigFile(override)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolve(home, appDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) resolve(home, appDir string) error {
	host, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server.addr %q: %w", cfg.Server.Addr, err)
	}
	cfg.Server.EffectiveHost = host
	if cfg.Server.EffectiveHost == "" {
		cfg.Server.EffectiveHost = "0.0.0.0"
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q in server.addr %q: %w", portStr, cfg.Server.Addr, err)
	}
	cfg.Server.Port = p

	if cfg.StorageDir == "" {
		cfg.StorageDir = appDir
	}
	cfg.StorageDir = expandHome(home, cfg.StorageDir)
	if cfg.SkillsDir == "" {
		cfg.SkillsDir = filepath.Join(cfg.StorageDir, "skills")
	}
	cfg.SkillsDir = expandHome(home, cfg.SkillsDir)

	if cfg.Runtime.BundledEnv == "" {
		cfg.Runtime.BundledEnv = filepath.Join(cfg.SkillsDir, ".venv")
	}
	if cfg.Runtime.UserEnv == "" {
		cfg.Runtime.UserEnv = filepath.Join(home, ".pharmaclaw", "venv")
	}
	cfg.Runtime.BundledEnv = expandHome(home, cfg.Runtime.BundledEnv)
	cfg.Runtime.UserEnv = expandHome(home, cfg.Runtime.UserEnv)

	// secrets may be given as $VAR placeholders
	cfg.refs = secretRefs{
		key:         cfg.Server.Key,
		adminPass:   cfg.Server.AdminPass,
		ircPassword: cfg.Channels.IRC.Password,
	}
	cfg.Server.Key = expandEnv(cfg.Server.Key)
	cfg.Server.AdminPass = expandEnv(cfg.Server.AdminPass)
	cfg.Channels.IRC.Password = expandEnv(cfg.Channels.IRC.Password)
	return nil
}

// KeepSecretRefs carries the placeholders of old over to cfg, so saving a
// config rebuilt from JSON still writes $VAR instead of the secret.
func (cfg *Config) KeepSecretRefs(old *Config) {
	cfg.refs = old.refs
}

func (cfg *Config) ReportsDir() string {
	return filepath.Join(cfg.StorageDir, "reports")
}

func expandHome(home, p string) string {
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "$") {
		return os.Getenv(strings.TrimPrefix(v, "$"))
	}
	return v
}

// persisted is the value Save writes for a secret: the placeholder while
// the secret still matches it, the literal value otherwise.
func persisted(ref, value string) string {
	if strings.HasPrefix(ref, "$") && expandEnv(ref) == value {
		return ref
	}
	return value
}

func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return err
	}

	v := viper.New()
	v.Set("runtime.bundled_env", cfg.Runtime.BundledEnv)
	v.Set("runtime.system_python", cfg.Runtime.SystemPython)
	v.Set("runtime.user_env", cfg.Runtime.UserEnv)
	v.Set("runtime.module", cfg.Runtime.Module)
	v.Set("runtime.probe_timeout", cfg.Runtime.ProbeTimeout.String())
	v.Set("pipeline.compare_skill", cfg.Pipeline.CompareSkill)
	v.Set("pipeline.compare_script", cfg.Pipeline.CompareScript)
	v.Set("pipeline.report_script", cfg.Pipeline.ReportScript)
	v.Set("pipeline.chem_skill", cfg.Pipeline.ChemSkill)
	v.Set("pipeline.pharma_skill", cfg.Pipeline.PharmaSkill)
	v.Set("pipeline.catalyst_skill", cfg.Pipeline.CatalystSkill)
	v.Set("pipeline.output_prefix", cfg.Pipeline.OutputPrefix)
	v.Set("pipeline.script_timeout", cfg.Pipeline.ScriptTimeout.String())
	v.Set("pipeline.concurrency", cfg.Pipeline.Concurrency)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.key", persisted(cfg.refs.key, cfg.Server.Key))
	v.Set("server.admin_user", cfg.Server.AdminUser)
	v.Set("server.admin_pass", persisted(cfg.refs.adminPass, cfg.Server.AdminPass))
	v.Set("server.rate_limit.per_second", cfg.Server.RateLimit.PerSecond)
	v.Set("server.rate_limit.burst", cfg.Server.RateLimit.Burst)
	v.Set("storage_dir", cfg.StorageDir)
	v.Set("skills_dir", cfg.SkillsDir)
	v.Set("clawhub.base_url", cfg.ClawHub.BaseURL)
	v.Set("channels.irc.enabled", cfg.Channels.IRC.Enabled)
	v.Set("channels.irc.server", cfg.Channels.IRC.Server)
	v.Set("channels.irc.port", cfg.Channels.IRC.Port)
	v.Set("channels.irc.nick", cfg.Channels.IRC.Nick)
	v.Set("channels.irc.channel", cfg.Channels.IRC.Channel)
	v.Set("channels.irc.use_tls", cfg.Channels.IRC.UseTLS)
	v.Set("channels.irc.password", persisted(cfg.refs.ircPassword, cfg.Channels.IRC.Password))
	v.Set("channels.irc.allowlist", cfg.Channels.IRC.Allowlist)

	v.SetConfigType("yaml")
	return v.WriteConfigAs(filepath.Join(cfg.StorageDir, "config.yaml"))
}
