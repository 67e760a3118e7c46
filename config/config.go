package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // vault-room-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Backend string `yaml:"backend"` // github|memory
	BaseURL string `yaml:"baseURL"` // для тестов/прокси; пусто = api.github.com
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
	Timeout string `yaml:"timeout"` // таймаут одного вызова к хранилищу
}

type Limits struct {
	MaxMessages    int    `yaml:"maxMessages"`
	RetentionDays  int    `yaml:"retentionDays"`
	TokenTTL       string `yaml:"tokenTTL"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`
}

// Secrets приходят только из окружения, в yaml им не место.
type Secrets struct {
	StoreToken    string // GITHUB_TOKEN
	SecretKey     string // SECRET_KEY — общий секрет шифрования и подписи токенов
	AdminPassword string // ADMIN_PASSWORD
	EntryPassword string // ENTRY_PASSWORD
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Logging Logging `yaml:"logging"`
	Store   Store   `yaml:"store"`
	Limits  Limits  `yaml:"limits"`

	Secrets Secrets `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Secrets = Secrets{
		StoreToken:    os.Getenv("GITHUB_TOKEN"),
		SecretKey:     os.Getenv("SECRET_KEY"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		EntryPassword: os.Getenv("ENTRY_PASSWORD"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Secrets.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "vault-room-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "github"
	}
	switch c.Store.Backend {
	case "github":
		if c.Store.Owner == "" || c.Store.Repo == "" {
			return errors.New("store.owner and store.repo are required for the github backend")
		}
		if c.Secrets.StoreToken == "" {
			return errors.New("GITHUB_TOKEN is required for the github backend")
		}
		if c.Store.Branch == "" {
			c.Store.Branch = "main"
		}
	case "memory":
		// dev-режим, ничего не требуется
	default:
		return errors.New("store.backend must be github or memory")
	}

	if c.Limits.MaxMessages <= 0 {
		c.Limits.MaxMessages = 100
	}
	if c.Limits.RetentionDays <= 0 {
		c.Limits.RetentionDays = 30
	}
	if c.Limits.MaxUploadBytes <= 0 {
		c.Limits.MaxUploadBytes = 8 << 20
	}
	return nil
}

// StoreTimeout возвращает таймаут вызова к хранилищу.
func (c *Config) StoreTimeout() time.Duration {
	return parseDurationOr(15*time.Second, c.Store.Timeout)
}

// TokenTTL возвращает срок жизни входного токена.
func (c *Config) TokenTTL() time.Duration {
	return parseDurationOr(10*time.Minute, c.Limits.TokenTTL)
}

// Retention возвращает срок жизни вложений.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Limits.RetentionDays) * 24 * time.Hour
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
