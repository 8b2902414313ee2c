// Package config loads the ironrsa server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory = "memory"
	StorageBBolt  = "bbolt"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

// Environment variables that override file values.
const (
	EnvRootPath     = "EASYRSA_ROOT_PATH"
	EnvTemplatePath = "EASYRSA_TEMPLATE_PATH"
	EnvAuthSecret   = "IRONRSA_AUTH_SECRET"
)

type Server struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

type TLS struct {
	Enable             bool   `yaml:"enable"`
	CA                 string `yaml:"ca"`
	Cert               string `yaml:"cert"`
	Key                string `yaml:"key"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// DB configures the SQL storage backends. Address is the data directory for
// sqlite and host:port for mysql.
type DB struct {
	Address     string `yaml:"address"`
	DB          string `yaml:"db"`
	Options     string `yaml:"options"`
	Debug       bool   `yaml:"debug"`
	Username    string `yaml:"username"`      // mysql only
	Password    string `yaml:"password"`      // mysql only
	MaxIdleConn int    `yaml:"max_idle_conn"` // mysql only
	MaxOpenConn int    `yaml:"max_open_conn"` // mysql only
	TLS         *TLS   `yaml:"tls"`           // mysql only
}

type Storage struct {
	Driver string `yaml:"driver"` // memory, bbolt, sqlite or mysql
	Path   string `yaml:"path"`   // bbolt only
	DB     DB     `yaml:"db"`
}

type EasyRSA struct {
	// RootPath holds one directory per issuer, named after its common name.
	RootPath string `yaml:"root_path"`
	// TemplatePath holds the easyrsa script, OpenSSL config and x509-types
	// directory copied into each issuer root.
	TemplatePath   string        `yaml:"template_path"`
	Script         string        `yaml:"script"`
	OpenSSLConfig  string        `yaml:"openssl_config"`
	X509Types      string        `yaml:"x509_types"`
	OpenVPN        string        `yaml:"openvpn"`
	PassphraseSize int           `yaml:"passphrase_size"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// BestEffort lets a step advance the issuer status even when its
	// external command fails.
	BestEffort bool `yaml:"best_effort"`
}

type Auth struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	EasyRSA EasyRSA `yaml:"easyrsa"`
	Auth    Auth    `yaml:"auth"`
	Log     Log     `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:    8443,
			DataDir: "./data",
		},
		Storage: Storage{
			Driver: StorageBBolt,
			DB: DB{
				DB: "ironrsa.db",
			},
		},
		EasyRSA: EasyRSA{
			RootPath:       "./pki",
			TemplatePath:   "/usr/share/easy-rsa",
			Script:         "easyrsa",
			OpenSSLConfig:  "openssl-easyrsa.cnf",
			X509Types:      "x509-types",
			OpenVPN:        "openvpn",
			PassphraseSize: 32,
		},
		Auth: Auth{
			Issuer:   "ironrsa",
			TokenTTL: 12 * time.Hour,
		},
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	conf := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	conf.applyEnv()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRootPath); v != "" {
		c.EasyRSA.RootPath = v
	}
	if v := os.Getenv(EnvTemplatePath); v != "" {
		c.EasyRSA.TemplatePath = v
	}
	if v := os.Getenv(EnvAuthSecret); v != "" {
		c.Auth.Secret = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageBBolt, StorageSQLite, StorageMySQL:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageMySQL && c.Storage.DB.Address == "" {
		return errors.New("storage.db.address is required for mysql")
	}
	if c.EasyRSA.RootPath == "" {
		return errors.New("easyrsa.root_path must not be empty")
	}
	if c.EasyRSA.TemplatePath == "" {
		return errors.New("easyrsa.template_path must not be empty")
	}
	// The passphrase path is written unquoted into every vars file.
	if strings.ContainsFunc(c.EasyRSA.RootPath, unicode.IsSpace) {
		return fmt.Errorf("easyrsa.root_path must not contain whitespace: %q", c.EasyRSA.RootPath)
	}
	if strings.ContainsFunc(c.EasyRSA.TemplatePath, unicode.IsSpace) {
		return fmt.Errorf("easyrsa.template_path must not contain whitespace: %q", c.EasyRSA.TemplatePath)
	}
	if c.EasyRSA.PassphraseSize < 4 {
		return fmt.Errorf("easyrsa.passphrase_size must be at least 4, got %d", c.EasyRSA.PassphraseSize)
	}
	if c.EasyRSA.CommandTimeout < 0 {
		return errors.New("easyrsa.command_timeout must not be negative")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// AuthSecret returns the token signing secret from auth.secret or, if unset,
// the contents of auth.secret_file.
func (c *Config) AuthSecret() ([]byte, error) {
	if c.Auth.Secret != "" {
		return []byte(c.Auth.Secret), nil
	}
	if c.Auth.SecretFile == "" {
		return nil, errors.New("auth.secret or auth.secret_file must be set")
	}
	data, err := os.ReadFile(c.Auth.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading auth secret: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("auth secret file is empty")
	}
	return data, nil
}
