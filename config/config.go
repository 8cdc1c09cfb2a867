package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var GConfig *Config

func Init(filePath string) {
	// .env is optional, it only feeds the secret overrides below
	_ = godotenv.Load()
	config, err := os.ReadFile(filePath)
	if err != nil {
		panic(err)
	}
	initFromYaml(config)
	GConfig.applyEnv()
	GConfig.fillDefault()
	err = GConfig.Verify()
	if err != nil {
		panic(err)
	}
}

func initFromYaml(config []byte) {
	err := yaml.Unmarshal(config, &GConfig)
	if err != nil {
		panic(err)
	}
}

type Config struct {
	Log       `yaml:"log"`
	Database  `yaml:"database"`
	Storage   `yaml:"storage"`
	Provider  `yaml:"provider"`
	Chat      `yaml:"chat"`
	Pipeline  `yaml:"pipeline"`
	Reconcile `yaml:"reconcile"`
	Kafka     `yaml:"kafka"`
}

func (c *Config) Verify() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database.driver must be mysql or postgres")
	}
	if c.Storage.Supplier != "ali_oss" && c.Storage.Supplier != "local" {
		return fmt.Errorf("storage.supplier must be ali_oss or local")
	}
	if c.Storage.Supplier == "local" && c.Storage.Local.BaseURL == "" {
		return fmt.Errorf("storage.local.base_url is required")
	}
	if _, err := time.ParseDuration(c.Storage.URLExpires); err != nil {
		return fmt.Errorf("storage.url_expires: %w", err)
	}
	if c.Provider.Supplier != "ark" && c.Provider.Supplier != "visual" {
		return fmt.Errorf("provider.supplier must be ark or visual")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Pipeline.MaxShots < 1 {
		return fmt.Errorf("pipeline.max_shots must be positive")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Database.DSN, "SHOT_HUB_DATABASE_DSN")
	override(&c.Storage.AliOss.AccessKeyId, "SHOT_HUB_OSS_ACCESS_KEY_ID")
	override(&c.Storage.AliOss.AccessKeySecret, "SHOT_HUB_OSS_ACCESS_KEY_SECRET")
	override(&c.Provider.Token, "SHOT_HUB_PROVIDER_TOKEN")
	override(&c.Provider.AccessKey, "SHOT_HUB_PROVIDER_ACCESS_KEY")
	override(&c.Provider.SecretKey, "SHOT_HUB_PROVIDER_SECRET_KEY")
	override(&c.Chat.Token, "SHOT_HUB_CHAT_TOKEN")
}

func (c *Config) fillDefault() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/shot-hub.log"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Storage.URLExpires == "" {
		c.Storage.URLExpires = "168h"
	}
	if c.Provider.Region == "" {
		c.Provider.Region = "cn-north-1"
	}
	if c.Provider.Service == "" {
		c.Provider.Service = "cv"
	}
	if c.Provider.PollInterval == 0 {
		c.Provider.PollInterval = 5 * time.Second
	}
	if c.Provider.MaxAttempts == 0 {
		c.Provider.MaxAttempts = 120
	}
	if c.Provider.RequestTimeout == 0 {
		c.Provider.RequestTimeout = time.Minute
	}
	if c.Chat.Timeout == 0 {
		c.Chat.Timeout = 2 * time.Minute
	}
	if c.Pipeline.MaxShots == 0 {
		c.Pipeline.MaxShots = 3
	}
	if c.Pipeline.MaxConcurrentShots == 0 {
		c.Pipeline.MaxConcurrentShots = c.Pipeline.MaxShots
	}
	if c.Pipeline.ShotDuration == 0 {
		c.Pipeline.ShotDuration = 5
	}
	if c.Pipeline.Resolution == "" {
		c.Pipeline.Resolution = "720p"
	}
	if c.Pipeline.AspectRatio == "" {
		c.Pipeline.AspectRatio = "9:16"
	}
	if c.Pipeline.MaxDuration == 0 {
		c.Pipeline.MaxDuration = 15 * time.Minute
	}
	if c.Pipeline.Heartbeat == 0 {
		c.Pipeline.Heartbeat = 15 * time.Second
	}
	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = time.Minute
	}
	if c.Reconcile.MinAge == 0 {
		c.Reconcile.MinAge = 2 * time.Minute
	}
	if c.Reconcile.MaxAttempts == 0 {
		c.Reconcile.MaxAttempts = 1
	}
	if c.Reconcile.GiveUpAfter == 0 {
		c.Reconcile.GiveUpAfter = 24 * time.Hour
	}
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type Database struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Storage struct {
	Supplier   string `yaml:"supplier"`
	URLExpires string `yaml:"url_expires"`
	AliOss     `yaml:"ali_oss"`
	Local      `yaml:"local"`
}

func (s Storage) Expires() time.Duration {
	d, _ := time.ParseDuration(s.URLExpires)
	return d
}

type AliOss struct {
	AccessKeyId     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Directory       string `yaml:"directory"`
	// PublicBaseURL serves objects from a public bucket/CDN instead of presigned URLs.
	PublicBaseURL string `yaml:"public_base_url"`
}

type Local struct {
	BasePath string `yaml:"base_path"`
	BaseURL  string `yaml:"base_url"`
}

type Provider struct {
	Supplier       string        `yaml:"supplier"` // ark | visual
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	Region         string        `yaml:"region"`
	Service        string        `yaml:"service"`
	VideoModel     string        `yaml:"video_model"`
	ImageModel     string        `yaml:"image_model"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MaxWait        time.Duration `yaml:"max_wait"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Chat struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Pipeline struct {
	MaxShots           int           `yaml:"max_shots"`
	MaxConcurrentShots int           `yaml:"max_concurrent_shots"`
	ShotDuration       int           `yaml:"shot_duration"`
	Resolution         string        `yaml:"resolution"`
	AspectRatio        string        `yaml:"aspect_ratio"`
	MaxDuration        time.Duration `yaml:"max_duration"`
	Heartbeat          time.Duration `yaml:"heartbeat"`
}

type Reconcile struct {
	Interval    time.Duration `yaml:"interval"`
	MinAge      time.Duration `yaml:"min_age"`
	MaxAttempts int           `yaml:"max_attempts"`
	GiveUpAfter time.Duration `yaml:"give_up_after"`
}

type Kafka struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
