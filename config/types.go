package config

import (
	"supplynet/native/agreement"
	"supplynet/native/escrow"
	"supplynet/native/identity"
	"supplynet/native/requests"
)

// Auth configures bearer token verification on the HTTP surface.
type Auth struct {
	Enabled bool `toml:"Enabled"`
	// HMACSecret signs HS256 tokens. HMACSecretEnv takes precedence when the
	// named variable is set.
	HMACSecret    string   `toml:"HMACSecret"`
	HMACSecretEnv string   `toml:"HMACSecretEnv"`
	Issuer        string   `toml:"Issuer"`
	Audience      []string `toml:"Audience"`
	// AllowAnonymousReads lets GET requests through without a token.
	AllowAnonymousReads bool  `toml:"AllowAnonymousReads"`
	ClockSkewSeconds    int64 `toml:"ClockSkewSeconds"`
}

// RateLimit bounds request throughput per client address.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Observability configures logging, metrics and tracing.
type Observability struct {
	ServiceName      string  `toml:"ServiceName"`
	Environment      string  `toml:"Environment"`
	LogLevel         string  `toml:"LogLevel"`
	LogFile          string  `toml:"LogFile"`
	LogMaxSizeMB     int     `toml:"LogMaxSizeMB"`
	LogMaxBackups    int     `toml:"LogMaxBackups"`
	LogMaxAgeDays    int     `toml:"LogMaxAgeDays"`
	MetricsEnabled   bool    `toml:"MetricsEnabled"`
	OTLPEndpoint     string  `toml:"OTLPEndpoint"`
	OTLPInsecure     bool    `toml:"OTLPInsecure"`
	TraceSampleRatio float64 `toml:"TraceSampleRatio"`
}

// Pauses switches individual registry modules off. Paused modules reject
// writes; reads are unaffected.
type Pauses struct {
	Identity   bool `toml:"Identity"`
	Requests   bool `toml:"Requests"`
	Agreements bool `toml:"Agreements"`
	Tracking   bool `toml:"Tracking"`
	Escrow     bool `toml:"Escrow"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case identity.ModuleName:
		return p.Identity
	case requests.ModuleName:
		return p.Requests
	case agreement.ModuleName:
		return p.Agreements
	case requests.TrackingModuleName:
		return p.Tracking
	case escrow.ModuleName:
		return p.Escrow
	default:
		return false
	}
}
