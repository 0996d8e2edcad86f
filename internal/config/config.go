package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	envPrefix      = "OVPNADM_"
	envConfigPath  = envPrefix + "CONFIG"
	defaultCfgPath = "config/dev.toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	DB       DBConfig       `toml:"db"`
	Throttle ThrottleConfig `toml:"throttle"`
	Ovpn     OvpnConfig     `toml:"ovpn"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Bind              string `toml:"bind"`
	CookieName        string `toml:"cookie_name"`
	SessionTTLSecs    int    `toml:"session_ttl_secs"`
	PepperFile        string `toml:"pepper_file"`
	BootstrapAdmin    string `toml:"bootstrap_admin"`
	BootstrapPassword string `toml:"bootstrap_password"`
	SweepIntervalSecs int    `toml:"sweep_interval_secs"`

	// Peers allowed to set X-Forwarded-For / X-Real-IP, as CIDRs or addresses.
	TrustedProxies []string `toml:"trusted_proxies"`
}

type DBConfig struct {
	Path     string `toml:"path"`
	MaxConns int    `toml:"max_conns"`
}

type ThrottleConfig struct {
	WindowSecs   int `toml:"window_secs"`
	MaxPerUserIP int `toml:"max_per_user_ip"`
	MaxPerIP     int `toml:"max_per_ip"`
}

type OvpnConfig struct {
	SocketPath   string `toml:"socket_path"`
	CCDDir       string `toml:"ccd_dir"`
	CNPattern    string `toml:"cn_pattern"`
	BundleRemote string `toml:"bundle_remote"`
	BundlePort   int    `toml:"bundle_port"`
	BundleProto  string `toml:"bundle_proto"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:              "127.0.0.1:8080",
			CookieName:        "ovpnadm_sid",
			SessionTTLSecs:    8 * 3600,
			PepperFile:        "/etc/ovpnadm/pepper",
			BootstrapAdmin:    "admin",
			SweepIntervalSecs: 600,
		},
		DB: DBConfig{
			Path:     "./data/ovpnadm.db",
			MaxConns: 10,
		},
		Throttle: ThrottleConfig{
			WindowSecs:   600,
			MaxPerUserIP: 10,
			MaxPerIP:     30,
		},
		Ovpn: OvpnConfig{
			SocketPath:  "/run/vpncertd.sock",
			CCDDir:      "/etc/openvpn/ccd",
			CNPattern:   `^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`,
			BundlePort:  1194,
			BundleProto: "udp",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by OVPNADM_CONFIG and OVPNADM_* environment overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()

	path := getEnvString(envConfigPath, defaultCfgPath)
	if err := cfg.loadFile(path, os.Getenv(envConfigPath) != ""); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Bind = getEnvString("OVPNADM_SERVER__BIND", c.Server.Bind)
	c.Server.CookieName = getEnvString("OVPNADM_SERVER__COOKIE_NAME", c.Server.CookieName)
	c.Server.SessionTTLSecs = getEnvInt("OVPNADM_SERVER__SESSION_TTL_SECS", c.Server.SessionTTLSecs)
	c.Server.PepperFile = getEnvString("OVPNADM_SERVER__PEPPER_FILE", c.Server.PepperFile)
	c.Server.BootstrapAdmin = getEnvString("OVPNADM_SERVER__BOOTSTRAP_ADMIN", c.Server.BootstrapAdmin)
	c.Server.BootstrapPassword = getEnvString("OVPNADM_SERVER__BOOTSTRAP_PASSWORD", c.Server.BootstrapPassword)
	c.Server.SweepIntervalSecs = getEnvInt("OVPNADM_SERVER__SWEEP_INTERVAL_SECS", c.Server.SweepIntervalSecs)
	c.Server.TrustedProxies = getEnvList("OVPNADM_SERVER__TRUSTED_PROXIES", c.Server.TrustedProxies)

	c.DB.Path = getEnvString("OVPNADM_DB__PATH", c.DB.Path)
	c.DB.MaxConns = getEnvInt("OVPNADM_DB__MAX_CONNS", c.DB.MaxConns)

	c.Throttle.WindowSecs = getEnvInt("OVPNADM_THROTTLE__WINDOW_SECS", c.Throttle.WindowSecs)
	c.Throttle.MaxPerUserIP = getEnvInt("OVPNADM_THROTTLE__MAX_PER_USER_IP", c.Throttle.MaxPerUserIP)
	c.Throttle.MaxPerIP = getEnvInt("OVPNADM_THROTTLE__MAX_PER_IP", c.Throttle.MaxPerIP)

	c.Ovpn.SocketPath = getEnvString("OVPNADM_OVPN__SOCKET_PATH", c.Ovpn.SocketPath)
	c.Ovpn.CCDDir = getEnvString("OVPNADM_OVPN__CCD_DIR", c.Ovpn.CCDDir)
	c.Ovpn.CNPattern = getEnvString("OVPNADM_OVPN__CN_PATTERN", c.Ovpn.CNPattern)
	c.Ovpn.BundleRemote = getEnvString("OVPNADM_OVPN__BUNDLE_REMOTE", c.Ovpn.BundleRemote)
	c.Ovpn.BundlePort = getEnvInt("OVPNADM_OVPN__BUNDLE_PORT", c.Ovpn.BundlePort)
	c.Ovpn.BundleProto = getEnvString("OVPNADM_OVPN__BUNDLE_PROTO", c.Ovpn.BundleProto)

	c.Log.Level = getEnvString("OVPNADM_LOG__LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("OVPNADM_LOG__FORMAT", c.Log.Format)
}

func (c *Config) Validate() error {
	if c.Server.CookieName == "" {
		return errors.New("server.cookie_name must not be empty")
	}
	if c.Server.SessionTTLSecs <= 0 {
		return errors.New("server.session_ttl_secs must be positive")
	}
	if c.Server.PepperFile == "" {
		return errors.New("server.pepper_file must be set")
	}
	if c.Throttle.WindowSecs <= 0 || c.Throttle.MaxPerUserIP <= 0 || c.Throttle.MaxPerIP <= 0 {
		return errors.New("throttle limits must be positive")
	}
	for _, entry := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("server.trusted_proxies: invalid entry %q", entry)
		}
	}
	if _, err := regexp.Compile(c.Ovpn.CNPattern); err != nil {
		return fmt.Errorf("ovpn.cn_pattern: %w", err)
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLSecs) * time.Second
}

func (c *Config) ThrottleWindow() time.Duration {
	return time.Duration(c.Throttle.WindowSecs) * time.Second
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvList splits a comma-separated value.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
