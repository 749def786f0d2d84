package config

import (
	"fmt"
	"time"
)

// EngineConfig tunes the delivery engine: retry/backoff, the periodic retry
// tick, reflection timeouts, and the address observation window.
type EngineConfig struct {
	// MaxAttempts bounds retries per message before giving up.
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelayMS is the first retry delay; grows by 1.5x per attempt.
	BaseDelayMS int `mapstructure:"base_delay_ms"`
	// CapDelayMS caps the retry delay growth.
	CapDelayMS int `mapstructure:"cap_delay_ms"`
	// TickMS is the period of the retry scan tick.
	TickMS int `mapstructure:"tick_ms"`
	// RequestTimeoutMS bounds any single reflection/relay/message exchange.
	RequestTimeoutMS int `mapstructure:"request_timeout_ms"`
	// ObservationTTLMS expires address observations from the recent window.
	ObservationTTLMS int `mapstructure:"observation_ttl_ms"`
	// ObservationMax bounds the number of retained observations.
	ObservationMax int `mapstructure:"observation_max"`
	// PathFanout is how many candidate paths a selection returns.
	PathFanout int `mapstructure:"path_fanout"`
}

// DefaultEngine returns the stock engine tuning.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		MaxAttempts:      10,
		BaseDelayMS:      100,
		CapDelayMS:       30000,
		TickMS:           500,
		RequestTimeoutMS: 10000,
		ObservationTTLMS: 300000,
		ObservationMax:   16,
		PathFanout:       3,
	}
}

func (e *EngineConfig) validate() error {
	if e.MaxAttempts <= 0 {
		return fmt.Errorf("engine.max_attempts must be > 0, got %d", e.MaxAttempts)
	}
	if e.BaseDelayMS <= 0 || e.CapDelayMS < e.BaseDelayMS {
		return fmt.Errorf("engine delays invalid: base=%dms cap=%dms", e.BaseDelayMS, e.CapDelayMS)
	}
	if e.TickMS <= 0 {
		return fmt.Errorf("engine.tick_ms must be > 0, got %d", e.TickMS)
	}
	if e.ObservationMax <= 0 {
		e.ObservationMax = 16
	}
	if e.PathFanout <= 0 {
		e.PathFanout = 3
	}
	return nil
}

// BaseDelay returns BaseDelayMS as a duration.
func (e EngineConfig) BaseDelay() time.Duration { return time.Duration(e.BaseDelayMS) * time.Millisecond }

// CapDelay returns CapDelayMS as a duration.
func (e EngineConfig) CapDelay() time.Duration { return time.Duration(e.CapDelayMS) * time.Millisecond }

// Tick returns TickMS as a duration.
func (e EngineConfig) Tick() time.Duration { return time.Duration(e.TickMS) * time.Millisecond }

// RequestTimeout returns RequestTimeoutMS as a duration.
func (e EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutMS) * time.Millisecond
}

// ObservationTTL returns ObservationTTLMS as a duration.
func (e EngineConfig) ObservationTTL() time.Duration {
	return time.Duration(e.ObservationTTLMS) * time.Millisecond
}
