package config

// Config holds runtime configuration for the gateway.
type Config struct {
	Port    string
	Backend BackendConfig
	Poll    PollConfig
	Metrics MetricsConfig
}

// BackendConfig locates the hardware-control backend.
type BackendConfig struct {
	BaseURL    string
	APIKey     string
	PolicyFile string
}

// PollConfig sets the default card-wait budget for kiosk flows.
type PollConfig struct {
	Interval    Duration
	MaxAttempts int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Port: envOrDefault(envPort, defaultPort),
		Backend: BackendConfig{
			BaseURL:    envOrDefault(envBackendBaseURL, defaultBackendBaseURL),
			APIKey:     envOrDefault(envBackendAPIKey, ""),
			PolicyFile: envOrDefault(envPolicyFile, ""),
		},
		Poll: PollConfig{
			Interval:    durationEnvOrDefault(envPollInterval, defaultPollInterval),
			MaxAttempts: intEnvOrDefault(envPollAttempts, defaultPollAttempts),
		},
		Metrics: loadMetrics(),
	}
}
