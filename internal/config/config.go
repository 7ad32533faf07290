package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `json:"server"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
	Signing  SigningConfig  `json:"signing"`
	Database DatabaseConfig `json:"database"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type SecurityConfig struct {
	CookieSecret      string        `json:"cookie_secret"`
	SessionTimeout    time.Duration `json:"session_timeout"`
	PasswordMinLength int           `json:"password_min_length"`
	MaxFailedAttempts int           `json:"max_failed_attempts"`
	LockoutDuration   time.Duration `json:"lockout_duration"`
}

type LoggingConfig struct {
	Level        string `json:"level"`
	FilePath     string `json:"file_path"`
	ConsoleLevel string `json:"console_level"`
	Format       string `json:"format"`
}

// SigningConfig covers the external signing gateway boundary: one-time token
// issuance and the acceptable clock skew on callback timestamps.
type SigningConfig struct {
	TokenSecret   string        `json:"token_secret"`
	TokenLifetime time.Duration `json:"token_lifetime"`
	CallbackSkew  time.Duration `json:"callback_skew"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

var (
	config     *Configuration
	configOnce sync.Once
	configLock sync.RWMutex
)

func LoadConfig(filePath string) (*Configuration, error) {
	var err error

	configOnce.Do(func() {
		var file *os.File
		file, err = os.Open(filePath)
		if err != nil {
			err = fmt.Errorf("failed to open config file: %w", err)
			return
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		config = &Configuration{}
		err = decoder.Decode(config)
		if err != nil {
			err = fmt.Errorf("failed to decode config file: %w", err)
			return
		}

		applyDefaults(config)
	})

	return config, err
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Signing.TokenLifetime == 0 {
		cfg.Signing.TokenLifetime = 5 * time.Minute
	}
	if cfg.Signing.CallbackSkew == 0 {
		cfg.Signing.CallbackSkew = 2 * time.Minute
	}
}

func GetConfig() *Configuration {
	configLock.RLock()
	defer configLock.RUnlock()
	return config
}

func InitializeDefaultConfig() *Configuration {
	configLock.Lock()
	defer configLock.Unlock()

	config = &Configuration{
		Server: ServerConfig{
			Port:         "8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Security: SecurityConfig{
			CookieSecret:      "sad-archivo-secret-key",
			SessionTimeout:    24 * time.Hour,
			PasswordMinLength: 8,
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:        "info",
			FilePath:     "logs/sad-archivo.log",
			ConsoleLevel: "info",
			Format:       "json",
		},
		Signing: SigningConfig{
			TokenSecret:   "sad-signing-token-secret",
			TokenLifetime: 5 * time.Minute,
			CallbackSkew:  2 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			Username:        "postgres",
			Password:        "password",
			Name:            "sad_archivo",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 300,
		},
	}

	return config
}

func LogConfig(logger *zap.Logger) {
	configLock.RLock()
	defer configLock.RUnlock()

	logger.Info("Application configuration",
		zap.String("port", config.Server.Port),
		zap.Duration("read_timeout", config.Server.ReadTimeout),
		zap.Duration("write_timeout", config.Server.WriteTimeout),
		zap.Duration("session_timeout", config.Security.SessionTimeout),
		zap.Duration("signing_token_lifetime", config.Signing.TokenLifetime),
		zap.Duration("signing_callback_skew", config.Signing.CallbackSkew),
		zap.String("database_host", config.Database.Host),
		zap.String("database_name", config.Database.Name),
	)
}
