package config

const (
	DefaultAnnounceIntervalMs = 10000
	DefaultSessionTimeoutMs   = 30000
	DefaultRequestTimeoutMs   = 3000

	DefaultReadMaxAttempts   = 3
	DefaultReadBackoffStepMs = 500

	DefaultListenAddr  = "/ip4/0.0.0.0/tcp/9000"
	DefaultMetricsAddr = ":9091"
)
