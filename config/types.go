package config

// Oracle points the bridge at the price publishing component.
type Oracle struct {
	// Component is the bech32 address of the publisher. On localnet it may be
	// left empty, in which case a local stand-in publisher is deployed.
	Component string `toml:"Component"`
}

// Log controls the structured logger.
type Log struct {
	Env  string `toml:"Env"`
	File string `toml:"File,omitempty"`
	// MaxSizeMB, MaxBackups and MaxAgeDays tune rotation of File.
	MaxSizeMB  int `toml:"MaxSizeMB,omitempty"`
	MaxBackups int `toml:"MaxBackups,omitempty"`
	MaxAgeDays int `toml:"MaxAgeDays,omitempty"`
}

// RateLimit bounds mutating RPC calls per client address.
type RateLimit struct {
	RequestsPerMinute uint32 `toml:"RequestsPerMinute"`
	Burst             int    `toml:"Burst"`
	// TrustedProxies lists reverse proxy IPs or CIDRs allowed to name the
	// client through X-Real-IP or X-Forwarded-For.
	TrustedProxies []string `toml:"TrustedProxies"`
}

// Telemetry configures OTLP trace export. Tracing is disabled when Endpoint is
// empty.
type Telemetry struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	// Headers is a comma separated key=value list sent with every export.
	Headers  string  `toml:"Headers,omitempty"`
	Insecure bool    `toml:"Insecure"`
	Traces   bool    `toml:"Traces"`
	Metrics  bool    `toml:"Metrics"`
	Ratio    float64 `toml:"Ratio,omitempty"`
}
