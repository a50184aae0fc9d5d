// Package config models the workspace settings surface (spec.md §6) and
// loads it from JSON using a drop-in, faster encoding/json replacement —
// the same ambient choice the teacher makes in its stats package for
// StatsD config.
package config

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/openbuildnet/obncore/cmn/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Comm is the transport a node or the workspace default is bound to.
type Comm string

const (
	CommYARP Comm = "yarp" // kept for original-source parity; not implemented, Validate rejects it
	CommMQTT Comm = "mqtt"
	CommDirect Comm = "direct"
)

// Config is the workspace settings table of spec.md §6.
type Config struct {
	TimeUnitMicros  int64  `json:"time_unit"`   // positive microseconds per elementary tick
	FinalTimeMicros int64  `json:"final_time"`   // microseconds; run stops at first tick strictly greater
	AckTimeoutMs    int64  `json:"ack_timeout"`  // milliseconds; per-ACK fatal deadline
	WallclockUnixS  int64  `json:"wallclock"`    // POSIX seconds at T=0; informational
	DefaultComm     Comm   `json:"default_comm"` // fallback transport when a port does not declare one
	MQTTServer      string `json:"mqtt_server"`  // broker URI
	RunSimulation   bool   `json:"run_simulation"`
}

func Default() *Config {
	return &Config{
		TimeUnitMicros: 1000,
		AckTimeoutMs:   5000,
		DefaultComm:    CommMQTT,
		RunSimulation:  true,
	}
}

func Load(data []byte) (*Config, error) {
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, cos.NewError(cos.KindConfig, "config", errors.Wrap(err, "decode workspace settings"))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.TimeUnitMicros <= 0 {
		return cos.Errorf(cos.KindConfig, "config", "time_unit must be positive microseconds, got %d", c.TimeUnitMicros)
	}
	if c.AckTimeoutMs <= 0 {
		return cos.Errorf(cos.KindConfig, "config", "ack_timeout must be positive milliseconds, got %d", c.AckTimeoutMs)
	}
	switch c.DefaultComm {
	case CommMQTT, CommDirect:
	default:
		return cos.Errorf(cos.KindConfig, "config", "unsupported default_comm %q", c.DefaultComm)
	}
	return nil
}

func (c *Config) TimeUnit() cos.TimeUnit { return cos.NewTimeUnit(c.TimeUnitMicros) }

func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMs) * time.Millisecond
}

func (c *Config) FinalTime() cos.SimTime {
	return c.TimeUnit().ToTicks(float64(c.FinalTimeMicros))
}
