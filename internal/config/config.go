package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the complete defense daemon configuration
type Config struct {
	SensorID         string           `yaml:"sensor_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 10)
	Monitor          MonitorConfig    `yaml:"monitor"`
	Camera           CameraConfig     `yaml:"camera"`
	Servo            ServoConfig      `yaml:"servo"`
	Sprinkler        SprinklerConfig  `yaml:"sprinkler"`
	Classifier       ClassifierConfig `yaml:"classifier"`
	Alerts           AlertsConfig     `yaml:"alerts"`
	Directory        DirectoryConfig  `yaml:"directory"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Health           HealthConfig     `yaml:"health"`
}

// MonitorConfig contains monitoring loop settings
type MonitorConfig struct {
	CheckIntervalS int    `yaml:"check_interval_s"` // seconds between defense checks
	SampleCount    int    `yaml:"sample_count"`     // images captured per sweep
	PhotoDir       string `yaml:"photo_dir"`        // working directory for captured images
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Device      string `yaml:"device"`       // v4l2 device path
	Width       int    `yaml:"width"`        // still width in pixels
	Height      int    `yaml:"height"`       // still height in pixels
	WarmupS     int    `yaml:"warmup_s"`     // sensor warm-up before first capture
	FallbackDir string `yaml:"fallback_dir"` // stock images used when the camera is absent
}

// ServoConfig contains camera rotation servo settings
type ServoConfig struct {
	Pin               string  `yaml:"pin"`                 // GPIO pin name, e.g. GPIO18
	MinAngle          int     `yaml:"min_angle"`           // degrees
	MaxAngle          int     `yaml:"max_angle"`           // degrees
	MotionStepDegrees int     `yaml:"motion_step_degrees"` // largest single rotation between capture points
	SettleTimeS       int     `yaml:"settle_time_s"`       // wait after commanding an angle
	PWMHz             int     `yaml:"pwm_hz"`              // control signal frequency
	DutyBase          float64 `yaml:"duty_base"`           // duty percent at angle 0
	DutyScale         float64 `yaml:"duty_scale"`          // degrees per duty percent
}

// SprinklerConfig contains water sprinkler settings
type SprinklerConfig struct {
	Pin       string `yaml:"pin"`        // GPIO pin name, e.g. GPIO23
	DurationS int    `yaml:"duration_s"` // deterrent run time in seconds
}

// ClassifierConfig contains threat detection API settings
type ClassifierConfig struct {
	BaseURL    string `yaml:"base_url"`
	UploadPath string `yaml:"upload_path"` // image ingestion route
	Context    string `yaml:"context"`     // analysis context sent with every upload
	TimeoutS   int    `yaml:"timeout_s"`
}

// AlertsConfig contains alert delivery settings
type AlertsConfig struct {
	BaseURL  string `yaml:"base_url"` // defaults to the classifier base URL
	Path     string `yaml:"path"`
	TimeoutS int    `yaml:"timeout_s"`
}

// DirectoryConfig contains platform directory lookup settings.
// An empty mongo_uri disables enrichment; alerts are still delivered.
type DirectoryConfig struct {
	MongoURI  string `yaml:"mongo_uri"`
	Database  string `yaml:"database"`
	TimeoutS  int    `yaml:"timeout_s"`
	CacheSize int    `yaml:"cache_size"` // entries per lookup cache
}

// MQTTConfig contains MQTT broker settings.
// An empty broker disables the telemetry and control plane.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control   string `yaml:"control"`
	Telemetry string `yaml:"telemetry"`
	Health    string `yaml:"health"`
}

// HealthConfig contains health check HTTP server settings
type HealthConfig struct {
	Port string `yaml:"port"`
}

// Load reads and parses a YAML configuration file.
// Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays DEFENSE_* environment variables onto the file config.
// Deployment scripts set these per device without editing the YAML.
func applyEnv(cfg *Config) {
	envString("DEFENSE_SENSOR_ID", &cfg.SensorID)
	envString("DEFENSE_CLASSIFIER_URL", &cfg.Classifier.BaseURL)
	envString("DEFENSE_ALERTS_URL", &cfg.Alerts.BaseURL)
	envString("DEFENSE_MONGO_URI", &cfg.Directory.MongoURI)
	envString("DEFENSE_MQTT_BROKER", &cfg.MQTT.Broker)
	envString("DEFENSE_PHOTO_DIR", &cfg.Monitor.PhotoDir)
	envString("DEFENSE_CAMERA_DEVICE", &cfg.Camera.Device)
	envString("DEFENSE_FALLBACK_DIR", &cfg.Camera.FallbackDir)
	envString("DEFENSE_SERVO_PIN", &cfg.Servo.Pin)
	envString("DEFENSE_SPRINKLER_PIN", &cfg.Sprinkler.Pin)
	envString("DEFENSE_HEALTH_PORT", &cfg.Health.Port)
	envInt("DEFENSE_CHECK_INTERVAL_S", &cfg.Monitor.CheckIntervalS)
	envInt("DEFENSE_SAMPLE_COUNT", &cfg.Monitor.SampleCount)
	envInt("DEFENSE_SPRINKLER_DURATION_S", &cfg.Sprinkler.DurationS)
	envInt("DEFENSE_MIN_ANGLE", &cfg.Servo.MinAngle)
	envInt("DEFENSE_MAX_ANGLE", &cfg.Servo.MaxAngle)
}

// envString overwrites dst when the variable is set and non-empty
func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt overwrites dst when the variable parses; a malformed value is
// ignored so a typo cannot wipe out the file setting.
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
