package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"radardeck/internal/radar"
)

type Config struct {
	Source SourceConfig `yaml:"source"`
	Serial SerialConfig `yaml:"serial"`
	Record RecordConfig `yaml:"record"`
	Replay ReplayConfig `yaml:"replay"`
	Sim    SimConfig    `yaml:"sim"`
	UDP    UDPConfig    `yaml:"udp"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`
}

const (
	SourceSerial = "serial"
	SourceReplay = "replay"
	SourceSim    = "sim"
)

type SourceConfig struct {
	// Kind is one of serial, replay or sim.
	Kind string `yaml:"kind"`
}

type SerialConfig struct {
	// Device may be empty to auto-detect.
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	Driver      string        `yaml:"driver"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	// Rate is frames per second.
	Rate         float64       `yaml:"rate"`
	RadiusM      float64       `yaml:"radius_m"`
	AltM         float64       `yaml:"alt_m"`
	Period       time.Duration `yaml:"period"`
	StdDev       float64       `yaml:"std_dev"`
	NoiseBytes   int           `yaml:"noise_bytes"`
	CorruptEvery int           `yaml:"corrupt_every"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

type WebConfig struct {
	// Listen is the HTTP listen address; empty disables the server.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Config{Web: WebConfig{Listen: ":8080"}}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Source.Kind = strings.ToLower(strings.TrimSpace(cfg.Source.Kind))
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceSerial
	}
	switch cfg.Source.Kind {
	case SourceSerial, SourceReplay, SourceSim:
	default:
		return fmt.Errorf("source.kind must be one of serial, replay, sim")
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 1000000
	}
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}
	cfg.Serial.Driver = strings.ToLower(strings.TrimSpace(cfg.Serial.Driver))
	switch cfg.Serial.Driver {
	case "", "termios", "portable":
	default:
		return fmt.Errorf("serial.driver must be termios or portable")
	}
	driver := cfg.Serial.Driver
	if driver == "" {
		driver = radar.DefaultDriver
	}
	if cfg.Source.Kind == SourceSerial && driver == radar.DriverTermios && !radar.TermiosBaudSupported(cfg.Serial.Baud) {
		return fmt.Errorf("serial.baud %d is not supported by the termios driver", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial.read_timeout must be >= 0")
	}

	if cfg.Record.Enable {
		if cfg.Source.Kind != SourceSerial {
			return fmt.Errorf("record requires source.kind=serial")
		}
		if cfg.Record.Path == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
	}

	if cfg.Source.Kind == SourceReplay {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when source.kind=replay")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}

	// Simulator defaults (safe even if unused).
	if cfg.Sim.Rate <= 0 {
		cfg.Sim.Rate = 50
	}
	if cfg.Sim.RadiusM <= 0 {
		cfg.Sim.RadiusM = 1.5
	}
	if cfg.Sim.AltM == 0 {
		cfg.Sim.AltM = 1.0
	}
	if cfg.Sim.Period <= 0 {
		cfg.Sim.Period = 20 * time.Second
	}
	if cfg.Sim.StdDev <= 0 {
		cfg.Sim.StdDev = 0.05
	}
	if cfg.Sim.NoiseBytes < 0 || cfg.Sim.CorruptEvery < 0 {
		return fmt.Errorf("sim.noise_bytes and sim.corrupt_every must be >= 0")
	}

	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if cfg.MQTT.Enable {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "radardeck/pose"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "radardeck"
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json")
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = 20
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays <= 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}

	return nil
}
