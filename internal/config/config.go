package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Env  string `yaml:"env"`
		File string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`
	Generator struct {
		// Endpoint points at a remote generation service; empty serves generation in-process.
		Endpoint  string `yaml:"endpoint"`
		OpenAIKey string `yaml:"openaiKey"`
		Model     string `yaml:"model"`
	} `yaml:"generator"`
	Limits struct {
		Anon         int    `yaml:"anon"`
		Registered   int    `yaml:"registered"`
		Window       string `yaml:"window"`
		PerMinute    int    `yaml:"perMinute"`
		MaxQuestions int    `yaml:"maxQuestions"`
	} `yaml:"limits"`
	Quiz struct {
		// StartCountdown is a pointer so an explicit 0 skips the countdown.
		StartCountdown  *int   `yaml:"startCountdown"`
		Unit            string `yaml:"unit"`
		AnimationBuffer string `yaml:"animationBuffer"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path. A missing file yields the defaults so the
// service can start with env overrides only.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Env == "" {
		c.Log.Env = "development"
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "gpt-4o"
	}
	if c.Limits.Anon == 0 {
		c.Limits.Anon = 5
	}
	if c.Limits.Registered == 0 {
		c.Limits.Registered = 10
	}
	if c.Limits.PerMinute == 0 {
		c.Limits.PerMinute = 6
	}
	if c.Limits.MaxQuestions == 0 {
		c.Limits.MaxQuestions = 50
	}
	if c.Quiz.StartCountdown == nil {
		countdown := 5
		c.Quiz.StartCountdown = &countdown
	}
	if c.Session.Secret == "" {
		c.Session.Secret = os.Getenv("SESSION_SECRET")
	}
	if c.Generator.OpenAIKey == "" {
		c.Generator.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
