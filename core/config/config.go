package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration settings.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Buckets     BucketsConfig `mapstructure:"buckets"`
	Queue       QueueConfig   `mapstructure:"queue"`
	Poll        PollConfig    `mapstructure:"poll"`
	AWS         AWSConfig     `mapstructure:"aws"`
	Model       ModelConfig   `mapstructure:"model"`
	Broker      BrokerConfig  `mapstructure:"broker"`
	Worker      WorkerConfig  `mapstructure:"worker"`
}

// BucketsConfig names the two logical object stores.
type BucketsConfig struct {
	Input  string `mapstructure:"input"`
	Output string `mapstructure:"output"`
}

// QueueConfig holds the notification queue settings. An empty URL selects
// the bucket-polling fallback mode.
type QueueConfig struct {
	URL               string `mapstructure:"url"`
	WaitSeconds       int32  `mapstructure:"wait_seconds"`
	VisibilitySeconds int32  `mapstructure:"visibility_seconds"`
}

// PollConfig tunes the bucket-polling fallback worker.
type PollConfig struct {
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	MaxKeys         int32    `mapstructure:"max_keys"`
	Suffixes        []string `mapstructure:"suffixes"`
}

// AWSConfig holds credentials and addressing for the storage and queue
// services. Endpoint is only set for S3-compatible local deployments.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ModelConfig locates the detection model and its runtime thresholds.
type ModelConfig struct {
	Path         string  `mapstructure:"path"`
	ConfigPath   string  `mapstructure:"config_path"`
	ManifestPath string  `mapstructure:"manifest_path"`
	Confidence   float64 `mapstructure:"confidence"`
	Overlap      float64 `mapstructure:"overlap"`
	InputSize    int     `mapstructure:"input_size"`
}

// BrokerConfig holds the MQTT endpoint, topic and the three credential
// files for the mutually-authenticated session.
type BrokerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Topic          string `mapstructure:"topic"`
	QoS            byte   `mapstructure:"qos"`
	ClientIDPrefix string `mapstructure:"client_id_prefix"`
	PublishTimeout int    `mapstructure:"publish_timeout_seconds"`
	RootCAFile     string `mapstructure:"root_ca_file"`
	CertFile       string `mapstructure:"cert_file"`
	KeyFile        string `mapstructure:"key_file"`
}

// WorkerConfig tunes the local side of the pipeline.
type WorkerConfig struct {
	StagingDir      string `mapstructure:"staging_dir"`
	SourceCleanup   bool   `mapstructure:"source_cleanup"`
	MetricsAddress  string `mapstructure:"metrics_address"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

// LoadConfig loads the application configuration from config.yaml and the
// environment (IRIS_ prefix). Validation is strict: the process must not
// begin serving with an incomplete configuration.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/iris")

	v.AutomaticEnv()
	v.SetEnvPrefix("IRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; proceed with defaults and environment variables.
			fmt.Fprintln(os.Stderr, "Config file not found, using defaults and environment variables.")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Store the viper instance to allow registering change hooks later
	currentViper = v

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fresh := &Config{}
		if err := v.Unmarshal(fresh); err != nil {
			fmt.Println(fmt.Errorf("failed to re-unmarshal config: %w", err))
			return
		}
		if err := fresh.Validate(); err != nil {
			fmt.Println(fmt.Errorf("ignoring invalid config change: %w", err))
			return
		}
		// Hooks receive the fresh snapshot. The config returned from
		// LoadConfig is never written again, so concurrent readers need no
		// locking.
		for _, hook := range configChangeHooks {
			hook(fresh)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("queue.wait_seconds", 20)
	v.SetDefault("queue.visibility_seconds", 120)
	v.SetDefault("poll.interval_seconds", 10)
	v.SetDefault("poll.max_keys", 10)
	v.SetDefault("poll.suffixes", []string{".jpg", ".jpeg", ".png"})
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("model.confidence", 0.8)
	v.SetDefault("model.overlap", 0.5)
	v.SetDefault("model.input_size", 416)
	v.SetDefault("broker.port", 8883)
	v.SetDefault("broker.topic", "yolo/detections/test")
	v.SetDefault("broker.qos", 1)
	v.SetDefault("broker.client_id_prefix", "iris-worker")
	v.SetDefault("broker.publish_timeout_seconds", 10)
	v.SetDefault("worker.staging_dir", os.TempDir())
	v.SetDefault("worker.metrics_address", ":9100")
	v.SetDefault("worker.shutdown_seconds", 30)
}

// bindEnvKeys binds every configuration key to its IRIS_ environment
// variable. AutomaticEnv only covers Get; a key without a default or an
// explicit binding is invisible to Unmarshal, so an env-only deployment
// would lose exactly the required settings.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"environment",
		"buckets.input",
		"buckets.output",
		"queue.url",
		"queue.wait_seconds",
		"queue.visibility_seconds",
		"poll.interval_seconds",
		"poll.max_keys",
		"poll.suffixes",
		"aws.region",
		"aws.endpoint",
		"aws.access_key",
		"aws.secret_key",
		"model.path",
		"model.config_path",
		"model.manifest_path",
		"model.confidence",
		"model.overlap",
		"model.input_size",
		"broker.host",
		"broker.port",
		"broker.topic",
		"broker.qos",
		"broker.client_id_prefix",
		"broker.publish_timeout_seconds",
		"broker.root_ca_file",
		"broker.cert_file",
		"broker.key_file",
		"worker.staging_dir",
		"worker.source_cleanup",
		"worker.metrics_address",
		"worker.shutdown_seconds",
	} {
		_ = v.BindEnv(key)
	}
}

// configChangeHooks stores functions to be called when the config changes.
var configChangeHooks []func(*Config)
var currentViper *viper.Viper

// AddConfigChangeHook registers a function to be called when the
// configuration file changes and re-validates cleanly. Used to adjust
// detector thresholds without a restart.
func (c *Config) AddConfigChangeHook(hook func(*Config)) {
	configChangeHooks = append(configChangeHooks, hook)
}

// Validate checks the configuration for required fields and valid values.
// Certificate paths must exist on disk before the worker starts.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
		// valid
	default:
		return fmt.Errorf("invalid environment: %q", c.Environment)
	}

	if c.Buckets.Input == "" {
		return fmt.Errorf("buckets.input is required")
	}
	if c.Buckets.Output == "" {
		return fmt.Errorf("buckets.output is required")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if c.Model.ManifestPath == "" {
		return fmt.Errorf("model.manifest_path is required")
	}
	if c.Model.Confidence < 0 || c.Model.Confidence > 1 {
		return fmt.Errorf("model.confidence must be in [0,1], got %v", c.Model.Confidence)
	}
	if c.Model.Overlap < 0 || c.Model.Overlap > 1 {
		return fmt.Errorf("model.overlap must be in [0,1], got %v", c.Model.Overlap)
	}
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Broker.Topic == "" {
		return fmt.Errorf("broker.topic is required")
	}
	if c.Queue.WaitSeconds < 0 || c.Queue.WaitSeconds > 20 {
		return fmt.Errorf("queue.wait_seconds must be in [0,20], got %d", c.Queue.WaitSeconds)
	}
	if c.Queue.VisibilitySeconds <= 0 {
		return fmt.Errorf("queue.visibility_seconds must be positive, got %d", c.Queue.VisibilitySeconds)
	}

	for name, path := range map[string]string{
		"broker.root_ca_file": c.Broker.RootCAFile,
		"broker.cert_file":    c.Broker.CertFile,
		"broker.key_file":     c.Broker.KeyFile,
	} {
		if path == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %q not found on disk", name, path)
		}
	}

	return nil
}

// GenerateMinimalConfig creates a config skeleton with the default knobs
// filled in, for `iris config generate`.
func GenerateMinimalConfig() *Config {
	return &Config{
		Environment: "development",
		Buckets:     BucketsConfig{Input: "iris-input", Output: "iris-output"},
		Queue: QueueConfig{
			WaitSeconds:       20,
			VisibilitySeconds: 120,
		},
		Poll: PollConfig{
			IntervalSeconds: 10,
			MaxKeys:         10,
			Suffixes:        []string{".jpg", ".jpeg", ".png"},
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Model: ModelConfig{
			Path:         "models/yolov4.weights",
			ConfigPath:   "models/yolov4.cfg",
			ManifestPath: "models/manifest.yaml",
			Confidence:   0.8,
			Overlap:      0.5,
			InputSize:    416,
		},
		Broker: BrokerConfig{
			Port:           8883,
			Topic:          "yolo/detections/test",
			QoS:            1,
			ClientIDPrefix: "iris-worker",
			PublishTimeout: 10,
			RootCAFile:     "certs/root-ca.pem",
			CertFile:       "certs/device.pem",
			KeyFile:        "certs/private.key",
		},
		Worker: WorkerConfig{
			StagingDir:      os.TempDir(),
			MetricsAddress:  ":9100",
			ShutdownSeconds: 30,
		},
	}
}

// SaveGeneratedConfig saves a generated config to a file.
func SaveGeneratedConfig(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(filename, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
