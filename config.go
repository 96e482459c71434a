package livetiming

import (
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var BuildVersion = "unstable"

const (
	defaultHostname                = "0.0.0.0:8772"
	defaultBridgeHostname          = "0.0.0.0:3000"
	defaultStreamURL               = "http://127.0.0.1:3000/sse"
	defaultTerminalRefreshInterval = 250
	defaultBaudRate                = 115200
)

type Configuration struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Stream     StreamConfig     `yaml:"stream"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Recording  RecordingConfig  `yaml:"recording"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	LogFile    string           `yaml:"log_file"`
}

type HTTPConfig struct {
	Hostname    string `yaml:"hostname"`
	OpenBrowser bool   `yaml:"open_browser"`
}

type StreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DashboardConfig struct {
	Terminal                  bool `yaml:"terminal"`
	TerminalRefreshIntervalMs int  `yaml:"terminal_refresh_interval_ms"`
}

func (d DashboardConfig) TerminalRefreshInterval() time.Duration {
	return time.Duration(d.TerminalRefreshIntervalMs) * time.Millisecond
}

type MonitoringConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SentryDSN string `yaml:"sentry_dsn"`
}

type RecordingConfig struct {
	Path string `yaml:"path"`
}

func (r RecordingConfig) IsEnabled() bool {
	return r.Path != ""
}

type BridgeConfig struct {
	Hostname         string  `yaml:"hostname"`
	SerialDevice     string  `yaml:"serial_device"`
	BaudRate         int     `yaml:"baud_rate"`
	ReplayPath       string  `yaml:"replay_path"`
	ReplayMultiplier float64 `yaml:"replay_multiplier"`
}

func ReadConfig(location string) (conf *Configuration, err error) {
	f, err := os.Open(location)

	if err != nil {
		return nil, errors.Wrapf(err, "livetiming: could not open config file %s", location)
	}

	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&conf)

	if err != nil {
		return nil, errors.Wrapf(err, "livetiming: could not parse config file %s", location)
	}

	conf.applyDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.Hostname == "" {
		c.HTTP.Hostname = defaultHostname
	}

	if c.Stream.URL == "" {
		c.Stream.URL = defaultStreamURL
	}

	if c.Dashboard.TerminalRefreshIntervalMs == 0 {
		c.Dashboard.TerminalRefreshIntervalMs = defaultTerminalRefreshInterval
	}

	if c.Bridge.Hostname == "" {
		c.Bridge.Hostname = defaultBridgeHostname
	}

	if c.Bridge.BaudRate == 0 {
		c.Bridge.BaudRate = defaultBaudRate
	}

	if c.Bridge.ReplayMultiplier == 0 {
		c.Bridge.ReplayMultiplier = 1
	}
}

func (c *Configuration) Validate() error {
	streamURL, err := url.Parse(c.Stream.URL)

	if err != nil {
		return errors.Wrap(err, "livetiming: invalid stream url")
	}

	if streamURL.Scheme != "http" && streamURL.Scheme != "https" {
		return errors.Errorf("livetiming: stream url must be http or https, got: %q", c.Stream.URL)
	}

	if c.Stream.Timeout < 0 {
		return errors.New("livetiming: stream timeout must not be negative")
	}

	if c.Dashboard.TerminalRefreshIntervalMs < 0 {
		return errors.New("livetiming: terminal refresh interval must be positive")
	}

	if c.Bridge.BaudRate < 0 {
		return errors.New("livetiming: baud rate must be positive")
	}

	if c.Bridge.ReplayMultiplier < 0 {
		return errors.New("livetiming: replay multiplier must be positive")
	}

	return nil
}
