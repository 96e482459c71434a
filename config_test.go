package livetiming

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	location := filepath.Join(t.TempDir(), "config.yml")

	if err := ioutil.WriteFile(location, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	return location
}

func TestReadConfig(t *testing.T) {
	t.Run("Defaults are applied", func(t *testing.T) {
		conf, err := ReadConfig(writeConfig(t, "monitoring:\n  enabled: true\n"))

		if err != nil {
			t.Error(err)
			return
		}

		if conf.HTTP.Hostname != defaultHostname || conf.Stream.URL != defaultStreamURL {
			t.Logf("defaults not applied: %+v", conf)
			t.Fail()
		}

		if conf.Dashboard.TerminalRefreshInterval() != 250*time.Millisecond {
			t.Logf("unexpected refresh interval: %s", conf.Dashboard.TerminalRefreshInterval())
			t.Fail()
		}

		if conf.Bridge.BaudRate != 115200 || conf.Bridge.ReplayMultiplier != 1 {
			t.Logf("unexpected bridge defaults: %+v", conf.Bridge)
			t.Fail()
		}

		if !conf.Monitoring.Enabled || conf.Recording.IsEnabled() {
			t.Logf("unexpected monitoring/recording config: %+v %+v", conf.Monitoring, conf.Recording)
			t.Fail()
		}
	})

	t.Run("Values are read", func(t *testing.T) {
		conf, err := ReadConfig(writeConfig(t, `
http:
  hostname: 127.0.0.1:9000
stream:
  url: http://raceserver:3000/sse
  timeout: 30s
dashboard:
  terminal: true
  terminal_refresh_interval_ms: 100
recording:
  path: session.db
bridge:
  serial_device: /dev/ttyACM0
  replay_multiplier: 2.5
`))

		if err != nil {
			t.Error(err)
			return
		}

		if conf.HTTP.Hostname != "127.0.0.1:9000" || conf.Stream.URL != "http://raceserver:3000/sse" || conf.Stream.Timeout != 30*time.Second {
			t.Logf("unexpected config: %+v", conf)
			t.Fail()
		}

		if !conf.Dashboard.Terminal || conf.Dashboard.TerminalRefreshInterval() != 100*time.Millisecond {
			t.Logf("unexpected dashboard config: %+v", conf.Dashboard)
			t.Fail()
		}

		if !conf.Recording.IsEnabled() || conf.Bridge.SerialDevice != "/dev/ttyACM0" || conf.Bridge.ReplayMultiplier != 2.5 {
			t.Logf("unexpected recording/bridge config: %+v %+v", conf.Recording, conf.Bridge)
			t.Fail()
		}
	})

	t.Run("Invalid stream url", func(t *testing.T) {
		_, err := ReadConfig(writeConfig(t, "stream:\n  url: ftp://raceserver/sse\n"))

		if err == nil {
			t.Log("expected an error for a non-http stream url")
			t.Fail()
		}
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))

		if err == nil {
			t.Log("expected an error for a missing config file")
			t.Fail()
		}
	})
}
