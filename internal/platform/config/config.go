// Package config loads process configuration from the environment so main
// stays lean. Values are read once at startup; key material is normalized
// here and treated as immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Issuer is the fixed issuer string stamped into every session token.
const Issuer = "agora server"

// Config captures everything the server needs from the environment.
type Config struct {
	Addr        string
	DatabaseURL string

	Redis RedisConfig

	KafkaBrokers []string
	AuditTopic   string

	JWTSecret []byte
	TokenTTL  time.Duration

	// AESKey and AESIV are normalized to exactly 32 and 16 bytes. They are
	// deployment-fixed: every instance must share them or issued tokens
	// cannot be validated elsewhere.
	AESKey [32]byte
	AESIV  [16]byte

	SSOAppID       string
	SSOAppKey      string
	SSOValidateURL string
}

// RedisConfig holds connection settings for the optional Redis instance.
// An empty URL disables Redis-backed features (token revocation).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables. Missing required
// variables are an error rather than a silent default: starting without key
// material would issue tokens nothing can validate.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr: getenvDefault("LISTEN_ADDR", ":50051"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		AuditTopic:     getenvDefault("AUDIT_TOPIC", "agora.audit"),
		SSOValidateURL: getenvDefault("SSO_VALIDATE_URL", "https://iaaa.pku.edu.cn/iaaa/svc/token/validate.do"),
	}

	var err error
	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return Config{}, err
	}

	secret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	cfg.JWTSecret = []byte(secret)

	ttlStr, err := requireEnv("JWT_EXPIRE_TIME")
	if err != nil {
		return Config{}, err
	}
	ttlSecs, err := strconv.ParseInt(ttlStr, 10, 64)
	if err != nil || ttlSecs <= 0 {
		return Config{}, fmt.Errorf("JWT_EXPIRE_TIME must be a positive integer number of seconds, got %q", ttlStr)
	}
	cfg.TokenTTL = time.Duration(ttlSecs) * time.Second

	key, err := requireEnv("AES256KEY")
	if err != nil {
		return Config{}, err
	}
	copy(cfg.AESKey[:], key)

	iv, err := requireEnv("AES256IV")
	if err != nil {
		return Config{}, err
	}
	copy(cfg.AESIV[:], iv)

	if cfg.SSOAppID, err = requireEnv("SSO_APP_ID"); err != nil {
		return Config{}, err
	}
	if cfg.SSOAppKey, err = requireEnv("SSO_APP_KEY"); err != nil {
		return Config{}, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func requireEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%s must be set", name)
	}
	return v, nil
}

func getenvDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
