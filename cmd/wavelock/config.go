package main

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nasa-jpl/wavelock/control"
	"github.com/nasa-jpl/wavelock/generichttp/wavelock"
	"github.com/nasa-jpl/wavelock/sim"
)

// Wavemeter configures the frequency reader
type Wavemeter struct {
	// Addr is the network or filesystem address of the meter,
	// e.g. 192.168.100.123:2006 for a device on port 6 of a digi portserver,
	// or /dev/ttyS4 for an RS232 device
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Serial determines if the connection is serial/RS232 (true) or TCP (false)
	Serial bool `koanf:"Serial" yaml:"Serial"`

	Channel int `koanf:"Channel" yaml:"Channel"`

	// Read is the unit the meter is read in, "frequency" or "wavelength"
	Read string `koanf:"Read" yaml:"Read"`
}

// Actuator configures the function generator used as the set-point
type Actuator struct {
	Addr    string `koanf:"Addr" yaml:"Addr"`
	Serial  bool   `koanf:"Serial" yaml:"Serial"`
	Channel int    `koanf:"Channel" yaml:"Channel"`

	// VoltsPerMilliVolt scales the set-point onto the generator output
	VoltsPerMilliVolt float64 `koanf:"VoltsPerMilliVolt" yaml:"VoltsPerMilliVolt"`

	// Prepare switches the generator to a DC output before use
	Prepare bool `koanf:"Prepare" yaml:"Prepare"`
}

// PowerMeter selects the power meter; Type is one of pm100d, pm100usb,
// wavemeter or none
type PowerMeter struct {
	Type string `koanf:"Type" yaml:"Type"`

	// Wavelength is the correction wavelength in nm sent to a PM100, zero to
	// leave it alone
	Wavelength float64 `koanf:"Wavelength" yaml:"Wavelength"`
}

// Control holds the defaults of every control call
type Control struct {
	Gain      float64 `koanf:"Gain" yaml:"Gain"`
	SettleMs  float64 `koanf:"SettleMs" yaml:"SettleMs"`
	PollHz    float64 `koanf:"PollHz" yaml:"PollHz"`
	MaxSignal float64 `koanf:"MaxSignal" yaml:"MaxSignal"`
	Mode      string  `koanf:"Mode" yaml:"Mode"`
	Hold      int     `koanf:"Hold" yaml:"Hold"`

	StabilizationS float64 `koanf:"StabilizationS" yaml:"StabilizationS"`
	TimeLimitS     float64 `koanf:"TimeLimitS" yaml:"TimeLimitS"`
}

// Log configures the zap logger
type Log struct {
	Level       string `koanf:"Level" yaml:"Level"`
	Development bool   `koanf:"Development" yaml:"Development"`
}

// Config is the whole wavelock.yml
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Endpoint is the path the lock is served under
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Mock replaces every device by a simulated laser
	Mock bool       `koanf:"Mock" yaml:"Mock"`
	Sim  sim.Config `koanf:"Sim" yaml:"Sim"`

	Wavemeter  Wavemeter  `koanf:"Wavemeter" yaml:"Wavemeter"`
	Actuator   Actuator   `koanf:"Actuator" yaml:"Actuator"`
	PowerMeter PowerMeter `koanf:"PowerMeter" yaml:"PowerMeter"`
	Control    Control    `koanf:"Control" yaml:"Control"`
	Log        Log        `koanf:"Log" yaml:"Log"`
}

// DefaultConfig is what mkconf writes
func DefaultConfig() Config {
	return Config{
		Addr:     ":8000",
		Endpoint: "/wavelock",
		Sim:      sim.DefaultConfig(),
		Wavemeter: Wavemeter{
			Addr:    "192.168.100.40:23",
			Channel: 1,
			Read:    "frequency",
		},
		Actuator: Actuator{
			Addr:              "192.168.100.41:5025",
			Channel:           1,
			VoltsPerMilliVolt: 1e-3,
			Prepare:           true,
		},
		PowerMeter: PowerMeter{Type: "pm100d"},
		Control: Control{
			Gain:           control.DefaultGain,
			MaxSignal:      control.MaxSignal,
			Mode:           "one-shot",
			Hold:           1,
			StabilizationS: 60,
			TimeLimitS:     3600,
		},
		Log: Log{Level: "info"},
	}
}

// LoadConfig layers the file at path over the defaults.  A missing file is
// not an error.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	c := Config{}
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return c, errors.Wrap(err, "loading defaults")
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			return c, errors.Wrapf(err, "loading %s", path)
		}
	}
	err := k.Unmarshal("", &c)
	return c, errors.Wrap(err, "decoding config")
}

func msDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// Defaults converts the control section into job defaults
func (c Config) Defaults() (wavelock.Defaults, error) {
	var mode control.ConvergenceMode
	if err := mode.UnmarshalText([]byte(c.Control.Mode)); err != nil {
		return wavelock.Defaults{}, err
	}
	return wavelock.Defaults{
		Gain:              c.Control.Gain,
		Settle:            msDuration(c.Control.SettleMs),
		Mode:              mode,
		Hold:              c.Control.Hold,
		StabilizationTime: time.Duration(c.Control.StabilizationS * float64(time.Second)),
		TimeLimit:         time.Duration(c.Control.TimeLimitS * float64(time.Second)),
	}, nil
}

// Logger builds the zap logger described by the log section
func (c Config) Logger() (*zap.SugaredLogger, error) {
	var zc zap.Config
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if c.Log.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Log.Level)
		if err != nil {
			return nil, errors.Wrap(err, "parsing log level")
		}
		zc.Level = lvl
	}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
