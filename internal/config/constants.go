package config

import "time"

const (
	envPort           = "PORT"
	envBackendBaseURL = "BACKEND_BASE_URL"
	envBackendAPIKey  = "BACKEND_API_KEY"
	envPolicyFile     = "POLICY_FILE"
	envPollInterval   = "POLL_INTERVAL"
	envPollAttempts   = "POLL_MAX_ATTEMPTS"
	envMetricsPort    = "METRICS_PORT"
	envMetricsOn      = "METRICS_ENABLED"
	envOtelEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOtelService    = "OTEL_SERVICE_NAME"
	envOtelInsecure   = "OTEL_EXPORTER_OTLP_INSECURE"

	defaultPort = "8080"
	// The hardware-control backend listens on the kiosk host itself.
	defaultBackendBaseURL = "http://127.0.0.1:5000/api"
	// Default card-wait budget: 30 ticks a second apart, matching the
	// backend's 30s card validity window.
	defaultPollInterval = 1 * time.Second
	defaultPollAttempts = 30
	defaultMetricsPort  = "9090"
)
