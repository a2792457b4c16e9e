package config

import (
	"fmt"
	"regexp"
)

var sensorIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	// Validate sensor_id
	if cfg.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}
	if !sensorIDPattern.MatchString(cfg.SensorID) {
		return fmt.Errorf("sensor_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 10 // default
	}

	// Validate monitor config
	if cfg.Monitor.CheckIntervalS == 0 {
		cfg.Monitor.CheckIntervalS = 300 // default: 5 minutes
	}
	if cfg.Monitor.CheckIntervalS < 0 {
		return fmt.Errorf("monitor.check_interval_s must be > 0")
	}
	if cfg.Monitor.SampleCount == 0 {
		cfg.Monitor.SampleCount = 5 // default
	}
	if cfg.Monitor.SampleCount < 1 {
		return fmt.Errorf("monitor.sample_count must be >= 1")
	}
	if cfg.Monitor.PhotoDir == "" {
		cfg.Monitor.PhotoDir = "/home/apiculture/photos"
	}

	// Validate camera config
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 1536
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 864
	}
	if cfg.Camera.WarmupS < 0 {
		return fmt.Errorf("camera.warmup_s must be >= 0")
	}
	if cfg.Camera.WarmupS == 0 {
		cfg.Camera.WarmupS = 2 // sensor needs time to auto-expose
	}
	if cfg.Camera.FallbackDir == "" {
		cfg.Camera.FallbackDir = "/home/apiculture/photos/stock"
	}

	// Validate servo config
	if err := validateServo(&cfg.Servo); err != nil {
		return fmt.Errorf("servo validation failed: %w", err)
	}

	// Validate sprinkler config
	if cfg.Sprinkler.Pin == "" {
		cfg.Sprinkler.Pin = "GPIO23"
	}
	if cfg.Sprinkler.DurationS == 0 {
		cfg.Sprinkler.DurationS = 10 // default
	}
	if cfg.Sprinkler.DurationS < 0 {
		return fmt.Errorf("sprinkler.duration_s must be > 0")
	}

	// Validate classifier config
	if cfg.Classifier.BaseURL == "" {
		return fmt.Errorf("classifier.base_url is required")
	}
	if cfg.Classifier.UploadPath == "" {
		cfg.Classifier.UploadPath = "/images"
	}
	if cfg.Classifier.Context == "" {
		cfg.Classifier.Context = "defense"
	}
	if cfg.Classifier.TimeoutS <= 0 {
		cfg.Classifier.TimeoutS = 30 // default
	}

	// Alert delivery defaults to the classifier host
	if cfg.Alerts.BaseURL == "" {
		cfg.Alerts.BaseURL = cfg.Classifier.BaseURL
	}
	if cfg.Alerts.Path == "" {
		cfg.Alerts.Path = "/alerts"
	}
	if cfg.Alerts.TimeoutS <= 0 {
		cfg.Alerts.TimeoutS = 10 // default
	}

	// Directory defaults (mongo_uri may stay empty; enrichment is optional)
	if cfg.Directory.Database == "" {
		cfg.Directory.Database = "apiculture"
	}
	if cfg.Directory.TimeoutS <= 0 {
		cfg.Directory.TimeoutS = 5 // default
	}
	if cfg.Directory.CacheSize <= 0 {
		cfg.Directory.CacheSize = 128 // default
	}

	// MQTT defaults (broker may stay empty; telemetry is optional)
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("apiculture/control/%s", cfg.SensorID)
		}
		if cfg.MQTT.Topics.Telemetry == "" {
			cfg.MQTT.Topics.Telemetry = fmt.Sprintf("apiculture/telemetry/%s", cfg.SensorID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("apiculture/health/%s", cfg.SensorID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control":       1,
				"cycle_summary": 1,
				"deterrent":     1,
				"alert":         1,
				"health":        0,
			}
		}
	}

	// Health server defaults
	if cfg.Health.Port == "" {
		cfg.Health.Port = "8080"
	}

	return nil
}

// validateServo validates servo settings and applies SG90 defaults
func validateServo(servo *ServoConfig) error {
	if servo.Pin == "" {
		servo.Pin = "GPIO18"
	}
	if servo.MinAngle == 0 && servo.MaxAngle == 0 {
		servo.MinAngle = -90
		servo.MaxAngle = 90
	}
	if servo.MinAngle >= servo.MaxAngle {
		return fmt.Errorf("min_angle (%d) must be < max_angle (%d)", servo.MinAngle, servo.MaxAngle)
	}
	if servo.MinAngle < -90 || servo.MaxAngle > 90 {
		return fmt.Errorf("angles must stay within [-90, 90], got [%d, %d]", servo.MinAngle, servo.MaxAngle)
	}
	if servo.MotionStepDegrees == 0 {
		servo.MotionStepDegrees = 10
	}
	if servo.MotionStepDegrees < 0 {
		return fmt.Errorf("motion_step_degrees must be > 0")
	}
	if servo.SettleTimeS == 0 {
		servo.SettleTimeS = 1 // horn needs time to reach the target
	}
	if servo.SettleTimeS < 0 {
		return fmt.Errorf("settle_time_s must be >= 0")
	}
	if servo.PWMHz == 0 {
		servo.PWMHz = 50
	}
	if servo.PWMHz < 0 {
		return fmt.Errorf("pwm_hz must be > 0")
	}
	if servo.DutyBase == 0 {
		servo.DutyBase = 7.5 // neutral pulse at 50Hz
	}
	if servo.DutyScale == 0 {
		servo.DutyScale = 18.0 // 90 degrees maps to 5 duty percent
	}
	return nil
}
