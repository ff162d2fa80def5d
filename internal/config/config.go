// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/modbus-rtu-tester/modbus"
)

// Config defines the global configuration structure
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Poll      PollConfig      `mapstructure:"poll"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SerialConfig defines RTU line settings. It is passed by value into every transaction.
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"` // N, E, O
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// ScanConfig defines the bus scanner range and per-slave timeout
type ScanConfig struct {
	Start   int           `mapstructure:"start"`
	End     int           `mapstructure:"end"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig defines live polling
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SimulatorConfig defines the simulated slave served by the simulate command
type SimulatorConfig struct {
	SlaveIDs    string            `mapstructure:"slave_ids"` // "1", "1,2", "1-10"
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// Standard baud rates offered by the CLI help. Other positive values are accepted.
var StandardBaudRates = []int{9600, 19200, 38400, 57600, 115200}

const (
	MinPollInterval = 100 * time.Millisecond
	MaxPollInterval = 10 * time.Second
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 500*time.Millisecond)
	v.SetDefault("scan.start", 1)
	v.SetDefault("scan.end", 10)
	v.SetDefault("scan.timeout", 300*time.Millisecond)
	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("simulator.slave_ids", "1")
	v.SetDefault("simulator.persistence.type", "memory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"device":       "serial.device",
	"baud":         "serial.baud_rate",
	"data-bits":    "serial.data_bits",
	"parity":       "serial.parity",
	"stop-bits":    "serial.stop_bits",
	"timeout":      "serial.timeout",
	"rs485":        "serial.rs485",
	"scan-start":   "scan.start",
	"scan-end":     "scan.end",
	"scan-timeout": "scan.timeout",
	"interval":     "poll.interval",
	"slave-ids":    "simulator.slave_ids",
	"storage":      "simulator.persistence.type",
	"storage-path": "simulator.persistence.path",
	"log-level":    "log.level",
	"log-file":     "log.file",
}

// AddFlags registers the shared serial and logging flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("device", "p", "", "Serial port device name.")
	fs.IntP("baud", "b", 0, fmt.Sprintf("Serial port speed, e.g. %v.", StandardBaudRates))
	fs.Int("data-bits", 0, "Data bits (7 or 8).")
	fs.String("parity", "", "Parity (N, E, O).")
	fs.Int("stop-bits", 0, "Stop bits (1 or 2).")
	fs.DurationP("timeout", "W", 0, "Response wait time.")
	fs.Bool("rs485", false, "Enable RS485 mode on the serial driver.")
	fs.StringP("log-level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDOUT only).")
}

// LoadConfig loads configuration from defaults, the config file and the parsed flags.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var configFile string
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-rtu-tester/")
		v.AddConfigPath("$HOME/.modbus-rtu-tester")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// configuration can come entirely from flags
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if config.Scan.Timeout == 0 {
		config.Scan.Timeout = config.Serial.Timeout
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = NormalizeParity(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// NormalizeParity maps None/Even/Odd spellings onto N/E/O.
func NormalizeParity(p string) string {
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case "", "N", "NONE":
		return "N"
	case "E", "EVEN":
		return "E"
	case "O", "ODD":
		return "O"
	}
	return strings.ToUpper(p)
}

// Validate checks the serial settings before any port is opened.
func (s SerialConfig) Validate() error {
	switch {
	case s.Device == "":
		return fmt.Errorf("%w: no serial device selected", modbus.ErrInvalidArgument)
	case s.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate %d", modbus.ErrInvalidArgument, s.BaudRate)
	case s.DataBits != 7 && s.DataBits != 8:
		return fmt.Errorf("%w: data bits %d, expected 7 or 8", modbus.ErrInvalidArgument, s.DataBits)
	case s.StopBits != 1 && s.StopBits != 2:
		return fmt.Errorf("%w: stop bits %d, expected 1 or 2", modbus.ErrInvalidArgument, s.StopBits)
	case s.Parity != "N" && s.Parity != "E" && s.Parity != "O":
		return fmt.Errorf("%w: parity %q, expected N, E or O", modbus.ErrInvalidArgument, s.Parity)
	case s.Timeout <= 0:
		return fmt.Errorf("%w: timeout %v", modbus.ErrInvalidArgument, s.Timeout)
	}
	return nil
}

// Validate checks the live polling interval.
func (p PollConfig) Validate() error {
	if p.Interval < MinPollInterval || p.Interval > MaxPollInterval {
		return fmt.Errorf("%w: poll interval %v outside [%v,%v]", modbus.ErrInvalidArgument, p.Interval, MinPollInterval, MaxPollInterval)
	}
	return nil
}
