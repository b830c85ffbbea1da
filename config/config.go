// Package config loads the service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
		Env  string `yaml:"env" env:"ENV"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver" env:"DB_DRIVER"`
		URL    string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"database"`

	NATS struct {
		Port       int   `yaml:"port" env:"NATS_PORT"`
		MaxPayload int32 `yaml:"max_payload" env:"NATS_MAX_PAYLOAD"`
	} `yaml:"nats"`

	Auth struct {
		JWTSecret     string `yaml:"jwt_secret" env:"JWT_SECRET"`
		AdminEmail    string `yaml:"admin_email" env:"ADMIN_EMAIL"`
		AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	} `yaml:"auth"`

	Inference struct {
		Backend  string        `yaml:"backend" env:"INFERENCE_BACKEND"`
		Endpoint string        `yaml:"endpoint" env:"INFERENCE_ENDPOINT"`
		APIKey   string        `yaml:"api_key" env:"GEMINI_API_KEY"`
		Model    string        `yaml:"model" env:"INFERENCE_MODEL"`
		Timeout  time.Duration `yaml:"timeout" env:"INFERENCE_TIMEOUT"`
	} `yaml:"inference"`

	Assistant struct {
		Model    string `yaml:"model" env:"ASSISTANT_MODEL"`
		TTSModel string `yaml:"tts_model" env:"TTS_MODEL"`
		Voice    string `yaml:"voice" env:"TTS_VOICE"`
	} `yaml:"assistant"`

	Sampler struct {
		Tick       time.Duration `yaml:"tick" env:"SAMPLER_TICK"`
		Interval   time.Duration `yaml:"interval" env:"SAMPLER_INTERVAL"`
		MaxWidth   int           `yaml:"max_width" env:"SAMPLER_MAX_WIDTH"`
		FFmpegPath string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
		DecoderFPS int           `yaml:"decoder_fps" env:"DECODER_FPS"`
		AutoStart  bool          `yaml:"auto_start" env:"SAMPLER_AUTO_START"`
	} `yaml:"sampler"`

	MQTT struct {
		Host     string `yaml:"host" env:"MQTT_HOST"`
		Port     int    `yaml:"port" env:"MQTT_PORT"`
		Username string `yaml:"username" env:"MQTT_USERNAME"`
		Password string `yaml:"password" env:"MQTT_PASSWORD"`
		ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	} `yaml:"mqtt"`

	Minio struct {
		Endpoint      string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey     string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey     string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket        string `yaml:"bucket" env:"MINIO_BUCKET"`
		UseSSL        bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
		PublicBaseURL string `yaml:"public_base_url" env:"MINIO_PUBLIC_BASE_URL"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers        []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		IncidentsTopic string   `yaml:"incidents_topic" env:"KAFKA_INCIDENTS_TOPIC"`
	} `yaml:"kafka"`
}

// Production reports whether the service runs in release mode
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

// Load reads the YAML file at path (if any) and then applies environment
// variables, which take priority. An empty path falls back to DRISHTI_CONFIG.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path = os.Getenv("DRISHTI_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.Server.Port, "3001")
	setString(&c.Server.Env, "development")
	setString(&c.Database.Driver, "postgres")
	if c.NATS.Port == 0 {
		c.NATS.Port = 4233
	}
	if c.NATS.MaxPayload <= 0 {
		c.NATS.MaxPayload = 8 * 1024 * 1024 // 8MB for frames
	}
	setString(&c.Auth.AdminEmail, "admin@drishti.local")
	setString(&c.Inference.Backend, "gemini")
	setString(&c.Inference.Model, "gemini-1.5-pro")
	if c.Inference.Timeout <= 0 {
		c.Inference.Timeout = 30 * time.Second
	}
	setString(&c.Assistant.Model, "gemini-1.5-pro")
	setString(&c.Assistant.TTSModel, "gemini-2.5-flash-preview-tts")
	setString(&c.Assistant.Voice, "Algenib")
	if c.Sampler.Tick <= 0 {
		c.Sampler.Tick = 100 * time.Millisecond
	}
	if c.Sampler.Interval <= 0 {
		c.Sampler.Interval = 2 * time.Second
	}
	if c.Sampler.MaxWidth <= 0 {
		c.Sampler.MaxWidth = 1280
	}
	setString(&c.Sampler.FFmpegPath, "ffmpeg")
	if c.Sampler.DecoderFPS <= 0 {
		c.Sampler.DecoderFPS = 2
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	setString(&c.MQTT.ClientID, "drishti-backend")
	setString(&c.Minio.Bucket, "drishti")
	setString(&c.Kafka.IncidentsTopic, "drishti.incidents")
}

func setString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}
