package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/motionscore/internal/config"
	"github.com/smartystreets/goconvey/convey"
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
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelURI, convey.ShouldEqual, "model.onnx")
				convey.So(cfg.DefaultTargetLen, convey.ShouldEqual, 75)
				convey.So(cfg.PreloadModel, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MOTIONSCORE_ADDR", ":9000")
			_ = os.Setenv("MOTIONSCORE_MODEL_URI", "s3://models/scorer.onnx")
			_ = os.Setenv("MOTIONSCORE_MODEL_SHA256", "deadbeef")
			_ = os.Setenv("MOTIONSCORE_DEFAULT_TARGET_LEN", "50")
			_ = os.Setenv("MOTIONSCORE_PRELOAD_MODEL", "false")
			_ = os.Setenv("MOTIONSCORE_MAX_BODY_BYTES", "4096")
			_ = os.Setenv("MOTIONSCORE_S3_USE_PATH_STYLE", "true")
			_ = os.Setenv("MOTIONSCORE_LOG_FORMAT", "json")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9000")
				convey.So(cfg.ModelURI, convey.ShouldEqual, "s3://models/scorer.onnx")
				convey.So(cfg.ModelSHA256, convey.ShouldEqual, "deadbeef")
				convey.So(cfg.DefaultTargetLen, convey.ShouldEqual, 50)
				convey.So(cfg.PreloadModel, convey.ShouldBeFalse)
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 4096)
				convey.So(cfg.S3UsePathStyle, convey.ShouldBeTrue)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# comments are fine
addr: ":9090"
model_uri: "gs://team-models/scorer.onnx"
default_target_len: 60
gcs_endpoint: "http://localhost:4443"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("MOTIONSCORE_CONFIG", tmpFile)
			_ = os.Setenv("MOTIONSCORE_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")                            // env
				convey.So(cfg.ModelURI, convey.ShouldEqual, "gs://team-models/scorer.onnx") // file
				convey.So(cfg.DefaultTargetLen, convey.ShouldEqual, 60)                     // file
				convey.So(cfg.GCSEndpoint, convey.ShouldEqual, "http://localhost:4443")     // file
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 1<<20)                      // default
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("MOTIONSCORE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("MOTIONSCORE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("MOTIONSCORE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("MOTIONSCORE_DEFAULT_TARGET_LEN", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the model source is read twice around an env change", func() {
			_ = os.Setenv("MOTIONSCORE_MODEL_URI", "first.onnx")
			defer clearConfigEnvVars()

			before, err := config.ModelSource(ctx)
			convey.So(err, convey.ShouldBeNil)

			_ = os.Setenv("MOTIONSCORE_MODEL_URI", "second.onnx")
			_ = os.Setenv("MOTIONSCORE_MODEL_SHA256", "cafe")
			after, err := config.ModelSource(ctx)

			convey.Convey("Then each read reflects the current environment", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(before.URI, convey.ShouldEqual, "first.onnx")
				convey.So(after, convey.ShouldResemble, config.ModelSettings{URI: "second.onnx", SHA256: "cafe"})
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"MOTIONSCORE_CONFIG",
		"MOTIONSCORE_ADDR",
		"MOTIONSCORE_LOG_FORMAT",
		"MOTIONSCORE_MODEL_URI",
		"MOTIONSCORE_MODEL_SHA256",
		"MOTIONSCORE_DEFAULT_TARGET_LEN",
		"MOTIONSCORE_PRELOAD_MODEL",
		"MOTIONSCORE_MAX_BODY_BYTES",
		"MOTIONSCORE_S3_USE_PATH_STYLE",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "motionscore-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
