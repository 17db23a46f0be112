package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RoanBrand/SerialToWebSocketBridge/bridge"
	"gopkg.in/yaml.v3"
)

// Files looked up when no --config is given. JSON is read by the YAML decoder as well.
var configNames = []string{"config.yaml", "config.yml", "config.json"}

// Configuration by file. Zero values leave the defaults in place.
type fileConfig struct {
	PortName       string        `yaml:"comport name"`
	BaudRate       int           `yaml:"baud rate"`
	URL            string        `yaml:"websocket url"`
	IdleDelay      time.Duration `yaml:"idle delay"`
	ReceiveTimeout time.Duration `yaml:"receive timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect delay"`
	DialTimeout    time.Duration `yaml:"dial timeout"`
	WriteTimeout   time.Duration `yaml:"write timeout"`
	MaxFrameSize   int           `yaml:"max frame size"`
	EchoToSerial   *bool         `yaml:"echo to serial"`
}

type configError struct {
	Op   string
	Path string
	Err  error
}

func (e *configError) Error() string {
	return fmt.Sprintf("%s (path=%s): %v", e.Op, e.Path, e.Err)
}

func (e *configError) Unwrap() error {
	return e.Err
}

// loadConfig returns the defaults overlaid with the config file, and the file used.
// Without an explicit path a missing file is not an error.
func loadConfig(explicit string) (bridge.Config, string, error) {
	cfg := bridge.DefaultConfig()

	filePath := explicit
	if filePath == "" {
		filePath = findConfig()
		if filePath == "" {
			return cfg, "", nil
		}
	}

	b, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, filePath, &configError{Op: "config.read", Path: filePath, Err: err}
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return cfg, filePath, &configError{Op: "config.decode", Path: filePath, Err: err}
	}
	fc.apply(&cfg)
	return cfg, filePath, nil
}

func (fc fileConfig) apply(cfg *bridge.Config) {
	if fc.PortName != "" {
		cfg.PortName = fc.PortName
	}
	if fc.BaudRate != 0 {
		cfg.BaudRate = fc.BaudRate
	}
	if fc.URL != "" {
		cfg.URL = fc.URL
	}
	if fc.IdleDelay != 0 {
		cfg.IdleDelay = fc.IdleDelay
	}
	if fc.ReceiveTimeout != 0 {
		cfg.ReceiveTimeout = fc.ReceiveTimeout
	}
	if fc.ReconnectDelay != 0 {
		cfg.ReconnectDelay = fc.ReconnectDelay
	}
	if fc.DialTimeout != 0 {
		cfg.DialTimeout = fc.DialTimeout
	}
	if fc.WriteTimeout != 0 {
		cfg.WriteTimeout = fc.WriteTimeout
	}
	if fc.MaxFrameSize != 0 {
		cfg.MaxFrameSize = fc.MaxFrameSize
	}
	if fc.EchoToSerial != nil {
		cfg.EchoToSerial = *fc.EchoToSerial
	}
}

// Look in the current working directory first, then next to the executable.
func findConfig() string {
	dirs := []string{"."}
	if exePath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exePath))
	}
	for _, dir := range dirs {
		for _, name := range configNames {
			p := filepath.Join(dir, name)
			if fileExists(p) {
				return p
			}
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory.
func fileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
