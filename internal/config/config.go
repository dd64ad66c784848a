// Package config provides configuration management for cablewatch using Viper.
//
// Options are flat upper-case keys loaded from a local TOML file overlaying
// built-in defaults. String values may reference other options with {KEY};
// references are resolved lazily on access, with a hard recursion depth of 8.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrCyclic is returned when {KEY} interpolation exceeds the maximum depth,
// which indicates a reference cycle between options.
var ErrCyclic = errors.New("config: interpolation recursion limit exceeded")

// maxResolveDepth bounds {KEY} interpolation chains.
const maxResolveDepth = 8

// keyPattern matches an interpolation reference inside a string value.
// Option names are upper-case identifiers; anything else is left verbatim.
var keyPattern = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)

// Config is a process-wide read-only view of typed settings.
type Config struct {
	v *viper.Viper
}

// SetDefaults configures default values for all recognized options.
func SetDefaults(v *viper.Viper) {
	projectDir, err := os.Getwd()
	if err != nil {
		projectDir = "."
	}

	v.SetDefault("WEB_LISTENADDR", "0.0.0.0")
	v.SetDefault("WEB_PORT", 8000)
	v.SetDefault("WEB_ROOTDIR", "{PROJECT_DIR}/www")
	v.SetDefault("LOGS_DIR", "{PROJECT_DIR}/logs")
	v.SetDefault("INGEST_DATADIR", "{PROJECT_DIR}/data/ingest")
	v.SetDefault("INGEST_YOUTUBE_STREAM_URL", "https://www.youtube.com/watch?v=Z-Nwo-ypKtM")
	v.SetDefault("PROJECT_DIR", projectDir)
	v.SetDefault("YT_DLP_EXTRA_ARGS", "")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("DATABASE_PATH", "{PROJECT_DIR}/data/cablewatch.db")
	v.SetDefault("GCP_PROJECT_ID", "")
	v.SetDefault("GCP_BUCKET_NAME", "")
	v.SetDefault("GCP_SERVICE_ACCOUNT", "")
	v.SetDefault("ROADMAP_HACKMD_URL", "")

	v.SetDefault("INGEST_SEGMENT_SECONDS", 30)
	v.SetDefault("INGEST_FLAP_MIN_UPTIME", "5s")
	v.SetDefault("INGEST_FLAP_MAX_UPTIME", "10s")
	v.SetDefault("INGEST_FLAP_RATIO", 0.6)

	v.SetDefault("SPEECH_TIMELINE_NAME", "speech-extractor")
	v.SetDefault("SPEECH_TIMELINE_DURATION", 600)
	v.SetDefault("SPEECH_BLOB_DIR", "{PROJECT_DIR}/data/blobs")
	v.SetDefault("BANNER_FRAMES_DIR", "{PROJECT_DIR}/frames")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads configuration from the given file (or the default search
// locations when path is empty) and environment variables. Environment
// variables use the CABLEWATCH_ prefix and take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cablewatch")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cablewatch")
	}

	v.SetEnvPrefix("CABLEWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// An explicitly named file must exist; default locations may not.
			if path != "" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	return &Config{v: v}, nil
}

// New wraps an existing viper instance. Intended for tests.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Resolve returns the string value of an option with {KEY} references
// expanded. Chains deeper than 8 fail with ErrCyclic.
func (c *Config) Resolve(name string) (string, error) {
	return c.resolve(name, []string{name})
}

func (c *Config) resolve(name string, chain []string) (string, error) {
	if len(chain) > maxResolveDepth {
		return "", fmt.Errorf("%w: %s", ErrCyclic, strings.Join(chain, " -> "))
	}
	raw := c.v.GetString(name)

	var resolveErr error
	out := keyPattern.ReplaceAllStringFunc(raw, func(m string) string {
		key := m[1 : len(m)-1]
		if !c.v.IsSet(key) {
			return m
		}
		val, err := c.resolve(key, append(chain, key))
		if err != nil {
			resolveErr = err
			return m
		}
		return val
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// mustResolve is for options whose defaults are known to be acyclic; a cycle
// can only be introduced by a local config file and is reported on first use.
func (c *Config) mustResolve(name string) string {
	val, err := c.Resolve(name)
	if err != nil {
		panic(err)
	}
	return val
}

// WebListenAddr returns the host:port the web service binds to.
func (c *Config) WebListenAddr() string {
	return fmt.Sprintf("%s:%d", c.WebHost(), c.WebPort())
}

// WebHost returns the bind address of the web service.
func (c *Config) WebHost() string { return c.mustResolve("WEB_LISTENADDR") }

// WebPort returns the listen port of the web service.
func (c *Config) WebPort() int { return c.v.GetInt("WEB_PORT") }

// WebRootDir returns the static file root served at /.
func (c *Config) WebRootDir() string { return c.mustResolve("WEB_ROOTDIR") }

// LogsDir returns the directory for log files.
func (c *Config) LogsDir() string { return c.mustResolve("LOGS_DIR") }

// IngestDataDir returns the segment archive directory.
func (c *Config) IngestDataDir() string { return c.mustResolve("INGEST_DATADIR") }

// StreamURL returns the upstream stream URL to capture.
func (c *Config) StreamURL() string { return c.mustResolve("INGEST_YOUTUBE_STREAM_URL") }

// ProjectDir returns the project base directory.
func (c *Config) ProjectDir() string { return c.mustResolve("PROJECT_DIR") }

// YtDlpExtraArgs returns extra arguments passed to the stream fetcher.
func (c *Config) YtDlpExtraArgs() string { return c.mustResolve("YT_DLP_EXTRA_ARGS") }

// Timezone returns the location used by the scheduler. The value "Local"
// (the default) resolves to the host local zone.
func (c *Config) Timezone() (*time.Location, error) {
	name := c.mustResolve("TIMEZONE")
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// DatabasePath returns the transcript database path.
func (c *Config) DatabasePath() string { return c.mustResolve("DATABASE_PATH") }

// GCPProjectID returns the cloud project used by the speech extractor.
func (c *Config) GCPProjectID() string { return c.mustResolve("GCP_PROJECT_ID") }

// GCPBucketName returns the cloud bucket used by the speech extractor.
func (c *Config) GCPBucketName() string { return c.mustResolve("GCP_BUCKET_NAME") }

// GCPServiceAccount returns the service account credentials path.
func (c *Config) GCPServiceAccount() string { return c.mustResolve("GCP_SERVICE_ACCOUNT") }

// RoadmapURL returns the roadmap document URL.
func (c *Config) RoadmapURL() string { return c.mustResolve("ROADMAP_HACKMD_URL") }

// SegmentSeconds returns the nominal segment duration in seconds.
func (c *Config) SegmentSeconds() int { return c.v.GetInt("INGEST_SEGMENT_SECONDS") }

// FlapMinUptime returns the start of the startup-flap detection window.
func (c *Config) FlapMinUptime() time.Duration { return c.v.GetDuration("INGEST_FLAP_MIN_UPTIME") }

// FlapMaxUptime returns the end of the startup-flap detection window.
func (c *Config) FlapMaxUptime() time.Duration { return c.v.GetDuration("INGEST_FLAP_MAX_UPTIME") }

// FlapRatio returns the failed-records-per-second threshold that trips the
// startup-flap abort.
func (c *Config) FlapRatio() float64 { return c.v.GetFloat64("INGEST_FLAP_RATIO") }

// SpeechTimelineName returns the timeline consumed by the speech extractor.
func (c *Config) SpeechTimelineName() string { return c.mustResolve("SPEECH_TIMELINE_NAME") }

// SpeechTimelineDuration returns the speech extractor window size.
func (c *Config) SpeechTimelineDuration() time.Duration {
	return time.Duration(c.v.GetInt("SPEECH_TIMELINE_DURATION")) * time.Second
}

// SpeechBlobDir returns the local blob store directory.
func (c *Config) SpeechBlobDir() string { return c.mustResolve("SPEECH_BLOB_DIR") }

// BannerFramesDir returns the output directory for extracted banner frames.
func (c *Config) BannerFramesDir() string { return c.mustResolve("BANNER_FRAMES_DIR") }

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string { return c.mustResolve("LOG_LEVEL") }

// LogFormat returns the configured log format.
func (c *Config) LogFormat() string { return c.mustResolve("LOG_FORMAT") }

// AsMap returns every option with references resolved, for display.
func (c *Config) AsMap() (map[string]string, error) {
	out := make(map[string]string)
	for _, key := range c.Keys() {
		val, err := c.Resolve(key)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// Keys returns the sorted option names.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.ToUpper(k))
	}
	sort.Strings(out)
	return out
}
