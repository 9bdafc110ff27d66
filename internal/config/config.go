package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/onionoffers/internal/logging"
	gotoml "github.com/pelletier/go-toml/v2"
)

// Config is the offersctl file configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Codec     CodecConfig     `toml:"codec"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Server    ServerConfig    `toml:"server"`
	Responder ResponderConfig `toml:"responder"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
	Bypass    bool   `toml:"bypass"`
}

type CodecConfig struct {
	MaxPayloadBytes int64 `toml:"max_payload_bytes"`
}

type DispatchConfig struct {
	Workers int `toml:"workers"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

// ResponderConfig describes the single offer answered by the built-in
// responder. NodeSecretHex is the issuer's 32-byte secret key.
type ResponderConfig struct {
	Description    string `toml:"description"`
	Issuer         string `toml:"issuer"`
	AmountMsats    uint64 `toml:"amount_msats"`
	QuantityMax    uint64 `toml:"quantity_max"`
	RelativeExpiry uint32 `toml:"relative_expiry"`
	NodeSecretHex  string `toml:"node_secret_hex"`
}

// Onion message packets carry at most this many payload bytes.
const MaxOnionPayload = 65535

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
		Codec: CodecConfig{MaxPayloadBytes: MaxOnionPayload},
		Dispatch: DispatchConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:        ":9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Responder: ResponderConfig{
			Description:    "offersctl demo offer",
			AmountMsats:    1000,
			RelativeExpiry: 3600,
		},
	}
}

// Load reads path over Default. Only keys present in the file override
// defaults; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("log", "bypass") {
		cfg.Log.Bypass = raw.Log.Bypass
	}

	if meta.IsDefined("codec", "max_payload_bytes") {
		cfg.Codec.MaxPayloadBytes = raw.Codec.MaxPayloadBytes
	}
	if meta.IsDefined("dispatch", "workers") {
		cfg.Dispatch.Workers = raw.Dispatch.Workers
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "cors_origins") {
		cfg.Server.CorsOrigins = normalizeList(raw.Server.CorsOrigins)
	}
	if meta.IsDefined("server", "token") {
		cfg.Server.Token = strings.TrimSpace(raw.Server.Token)
	}

	if meta.IsDefined("responder", "description") {
		cfg.Responder.Description = raw.Responder.Description
	}
	if meta.IsDefined("responder", "issuer") {
		cfg.Responder.Issuer = raw.Responder.Issuer
	}
	if meta.IsDefined("responder", "amount_msats") {
		cfg.Responder.AmountMsats = raw.Responder.AmountMsats
	}
	if meta.IsDefined("responder", "quantity_max") {
		cfg.Responder.QuantityMax = raw.Responder.QuantityMax
	}
	if meta.IsDefined("responder", "relative_expiry") {
		cfg.Responder.RelativeExpiry = raw.Responder.RelativeExpiry
	}
	if meta.IsDefined("responder", "node_secret_hex") {
		cfg.Responder.NodeSecretHex = strings.TrimSpace(raw.Responder.NodeSecretHex)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	logs.Debugf("config.Load path=%s workers=%d max_payload=%d", path, cfg.Dispatch.Workers, cfg.Codec.MaxPayloadBytes)
	return cfg, nil
}

func Validate(cfg Config) error {
	if _, ok := logs.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log config invalid level: %q", cfg.Log.Level)
	}
	if cfg.Codec.MaxPayloadBytes < 0 || cfg.Codec.MaxPayloadBytes > MaxOnionPayload {
		return fmt.Errorf("codec config max_payload_bytes must be within 0..%d", MaxOnionPayload)
	}
	if cfg.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch config workers must be positive")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	if strings.TrimSpace(cfg.Responder.Description) == "" && cfg.Responder.AmountMsats != 0 {
		return fmt.Errorf("responder config description required when amount_msats is set")
	}
	if s := cfg.Responder.NodeSecretHex; s != "" && len(s) != 64 {
		return fmt.Errorf("responder config node_secret_hex must be 64 hex characters")
	}
	return nil
}

// Render encodes cfg as TOML.
func Render(cfg Config) ([]byte, error) {
	out, err := gotoml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config render failed: %w", err)
	}
	return out, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
