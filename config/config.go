// Package config loads a connection profile from a TOML file.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kleeedolinux/wssconn/logger"
	"github.com/kleeedolinux/wssconn/wss"
)

var (
	ErrHostRequired       = errors.New("config: connection host required")
	ErrPortRequired       = errors.New("config: connection port required")
	ErrInvalidTLSVersion  = errors.New("config: invalid tls min_version")
	ErrCertKeyPair        = errors.New("config: tls cert_file and key_file must be set together")
	ErrInvalidReadLimit   = errors.New("config: read_limit must not be negative")
	ErrUnparsableCABundle = errors.New("config: no certificates found in ca bundle")
)

type Config struct {
	Host string
	Port string
	Path string

	UserAgent   string
	Compression bool
	ReadLimit   int64

	TLS TLSConfig
	Log logger.Config
}

type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	MinVersion         string
	InsecureSkipVerify bool
}

type fileConfig struct {
	Connection struct {
		Host        string `toml:"host"`
		Port        string `toml:"port"`
		Path        string `toml:"path"`
		UserAgent   string `toml:"user_agent"`
		Compression bool   `toml:"compression"`
		ReadLimit   int64  `toml:"read_limit"`
	} `toml:"connection"`
	TLS struct {
		CAFile             string `toml:"ca_file"`
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		MinVersion         string `toml:"min_version"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		NoColor    bool   `toml:"no_color"`
	} `toml:"log"`
}

func Default() Config {
	return Config{
		Port: "443",
		Path: wss.DefaultPath,
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Log: logger.Config{
			Level: "info",
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("connection", "host") {
		cfg.Host = strings.TrimSpace(raw.Connection.Host)
	}
	if meta.IsDefined("connection", "port") {
		cfg.Port = strings.TrimSpace(raw.Connection.Port)
	}
	if meta.IsDefined("connection", "path") {
		cfg.Path = strings.TrimSpace(raw.Connection.Path)
	}
	if meta.IsDefined("connection", "user_agent") {
		cfg.UserAgent = strings.TrimSpace(raw.Connection.UserAgent)
	}
	if meta.IsDefined("connection", "compression") {
		cfg.Compression = raw.Connection.Compression
	}
	if meta.IsDefined("connection", "read_limit") {
		cfg.ReadLimit = raw.Connection.ReadLimit
	}

	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}
	if meta.IsDefined("tls", "min_version") {
		cfg.TLS.MinVersion = strings.TrimSpace(raw.TLS.MinVersion)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.FilePath = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown keys %v", path, undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.Port == "" {
		return ErrPortRequired
	}
	if c.ReadLimit < 0 {
		return ErrInvalidReadLimit
	}
	if _, err := parseTLSVersion(c.TLS.MinVersion); err != nil {
		return err
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return ErrCertKeyPair
	}
	if _, err := logger.ToLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) Settings() wss.ConnectionSettings {
	return wss.ConnectionSettings{
		Host: c.Host,
		Port: c.Port,
		Path: c.Path,
	}
}

// TLSConfig builds the client security context. The server name is left for
// the dialer to fill in from the host.
func (c Config) TLSConfig() (*tls.Config, error) {
	minVersion, err := parseTLSVersion(c.TLS.MinVersion)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:         minVersion,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}

	if c.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("config: read tls ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnparsableCABundle, c.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}

	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("config: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func (c Config) LoggerConfig() *logger.Config {
	cfg := c.Log
	return &cfg
}

// WorkerOptions turns the profile into options for wss.NewWorker.
func (c Config) WorkerOptions() ([]wss.Option, error) {
	tlsConfig, err := c.TLSConfig()
	if err != nil {
		return nil, err
	}

	opts := []wss.Option{
		wss.WithTLSConfig(tlsConfig),
		wss.WithCompression(c.Compression),
	}
	if c.UserAgent != "" {
		opts = append(opts, wss.WithUserAgent(c.UserAgent))
	}
	if c.ReadLimit > 0 {
		opts = append(opts, wss.WithReadLimit(c.ReadLimit))
	}
	return opts, nil
}

func parseTLSVersion(raw string) (uint16, error) {
	switch strings.TrimSpace(raw) {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTLSVersion, raw)
	}
}
