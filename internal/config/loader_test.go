package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.PollIntervalMS, convey.ShouldEqual, 1000)
				convey.So(cfg.PublishFailureThreshold, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CTFMQTT_DATABASE_DSN", "postgres://ctf@db/ctf")
			_ = os.Setenv("CTFMQTT_BROKER_URL", "tcp://mosquitto:1883")
			_ = os.Setenv("CTFMQTT_TIMESTAMP_OFFSET_SECONDS", "0")
			_ = os.Setenv("CTFMQTT_CAPTURE_SPACING_MS", "250")
			_ = os.Setenv("CTFMQTT_DRY_RUN", "true")
			_ = os.Setenv("CTFMQTT_REBUILD_ON_START", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DatabaseDSN, convey.ShouldEqual, "postgres://ctf@db/ctf")
				convey.So(cfg.BrokerURL, convey.ShouldEqual, "tcp://mosquitto:1883")
				convey.So(cfg.TimestampOffset(), convey.ShouldEqual, 0)
				convey.So(cfg.CaptureSpacing(), convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.DryRun, convey.ShouldBeTrue)
				convey.So(cfg.RebuildOnStart, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9100"
broker_topic: "ctf/status"
broker_qos: 1
tick_settle_ms: 3000
sla_precision: 2
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CTFMQTT_CONFIG", tmpFile)
			_ = os.Setenv("CTFMQTT_BROKER_QOS", "2") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9100")               // From file
				convey.So(cfg.BrokerTopic, convey.ShouldEqual, "ctf/status")   // From file
				convey.So(cfg.BrokerQoS, convey.ShouldEqual, 2)                // Overridden by env
				convey.So(cfg.TickSettle(), convey.ShouldEqual, 3*time.Second) // From file
				convey.So(cfg.SLAPrecision, convey.ShouldEqual, 2)             // From file
				convey.So(cfg.FinishGraceMS, convey.ShouldEqual, 2000)         // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CTFMQTT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("CTFMQTT_CONFIG", "/nonexistent/ctf-mqtt.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CTFMQTT_POLL_INTERVAL_MS", "soon")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("CTFMQTT_PUBLISH_FAILURE_THRESHOLD", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an invalid config error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "ctf-mqtt-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"CTFMQTT_CONFIG",
		"CTFMQTT_DATABASE_DSN",
		"CTFMQTT_BROKER_URL",
		"CTFMQTT_BROKER_QOS",
		"CTFMQTT_TIMESTAMP_OFFSET_SECONDS",
		"CTFMQTT_CAPTURE_SPACING_MS",
		"CTFMQTT_DRY_RUN",
		"CTFMQTT_REBUILD_ON_START",
		"CTFMQTT_POLL_INTERVAL_MS",
		"CTFMQTT_PUBLISH_FAILURE_THRESHOLD",
	} {
		_ = os.Unsetenv(name)
	}
}
