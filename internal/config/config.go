// Package config loads flatbridge settings from an optional config file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/cryptoe/flatbridge/compress/zstd"
	"github.com/cryptoe/flatbridge/internal/datekey"
	"github.com/cryptoe/flatbridge/internal/pipeline"
	"github.com/cryptoe/flatbridge/transfer"
	"github.com/cryptoe/flatbridge/transfer/filter"
)

// Configuration errors.
var (
	ErrMissingSetting = errors.New("config: missing setting")
	ErrInvalidSetting = errors.New("config: invalid setting")
)

// Config aggregates the settings of a run.
type Config struct {
	Input    StoreConfig    `mapstructure:"input"`
	Output   StoreConfig    `mapstructure:"output"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig describes one object store. Which fields apply depends on
// Backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Suffix  string `mapstructure:"suffix"`

	// S3 and GCS.
	Endpoint     string        `mapstructure:"endpoint"`
	Region       string        `mapstructure:"region"`
	UsePathStyle bool          `mapstructure:"use_path_style"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// GCS.
	CredentialsFile           string `mapstructure:"credentials_file"`
	ImpersonateServiceAccount string `mapstructure:"impersonate_service_account"`

	// SFTP and file.
	Root           string `mapstructure:"root"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	KeyFile        string `mapstructure:"key_file"`
	KnownHostsFile string `mapstructure:"known_hosts_file"`

	// Include and Exclude select input objects by key pattern.
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// PipelineConfig holds run behaviour.
type PipelineConfig struct {
	Mode             string `mapstructure:"mode"`
	LocalDir         string `mapstructure:"local_dir"`
	Dedup            bool   `mapstructure:"dedup"`
	Workers          int    `mapstructure:"workers"`
	FailFast         bool   `mapstructure:"fail_fast"`
	StartDate        string `mapstructure:"start_date"`
	EndDate          string `mapstructure:"end_date"`
	CompressionLevel int    `mapstructure:"compression_level"`
	Report           string `mapstructure:"report"`
	BandwidthLimit   int64  `mapstructure:"bandwidth_limit"`
	FilterFile       string `mapstructure:"filter_file"`
}

// RetryConfig bounds retries of fetches and publishes.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

var defaults = map[string]any{
	"input.backend":              "s3",
	"input.bucket":               "flatfiles",
	"input.endpoint":             "https://files.polygon.io",
	"input.use_path_style":       true,
	"input.region":               "us-east-1",
	"input.suffix":               datekey.DefaultInputSuffix,
	"output.backend":             "gcs",
	"output.suffix":              datekey.DefaultOutputSuffix,
	"pipeline.mode":              string(pipeline.ModeLocal),
	"pipeline.local_dir":         "local_parquet_files",
	"pipeline.dedup":             true,
	"pipeline.workers":           1,
	"pipeline.compression_level": 3,
	"retry.max_retries":          3,
	"retry.initial_delay":        time.Second,
	"retry.max_delay":            30 * time.Second,
	"logging.level":              "info",
	"logging.format":             "json",
}

// legacyEnv maps keys to the variable names of earlier deployments.
var legacyEnv = map[string]string{
	"input.prefix":        "INPUT_PREFIX",
	"output.prefix":       "OUTPUT_PREFIX",
	"output.bucket":       "BUCKET_NAME",
	"pipeline.start_date": "START_DATE",
	"pipeline.end_date":   "END_DATE",
}

// Load reads configuration from a file and environment variables.
//
// When path is empty, "flatbridge.yaml" (or any format viper knows) in the
// working directory is read if present. Environment variables use the
// prefix "FLATBRIDGE" and the dot character in keys is replaced by an
// underscore, so "input.prefix" becomes "FLATBRIDGE_INPUT_PREFIX".
// INPUT_PREFIX, OUTPUT_PREFIX, BUCKET_NAME, START_DATE and END_DATE are
// honoured as fallbacks.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flatbridge")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FLATBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	bindEnvs(v, cfg)
	for key, legacy := range legacyEnv {
		env := "FLATBRIDGE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env, legacy)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate reports every missing or invalid setting.
func (c *Config) Validate() error {
	var errs *multierror.Error
	missing := func(key string) {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrMissingSetting, key))
	}
	invalid := func(key string, format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidSetting, key, fmt.Sprintf(format, args...)))
	}

	if c.Input.Prefix == "" {
		missing("input.prefix")
	}
	if c.Output.Prefix == "" {
		missing("output.prefix")
	}
	validateStore("input", c.Input, missing, invalid)
	validateStore("output", c.Output, missing, invalid)

	if c.Input.Suffix == "" {
		missing("input.suffix")
	}
	if c.Output.Suffix == "" {
		missing("output.suffix")
	}

	mode, err := pipeline.ParseMode(c.Pipeline.Mode)
	if err != nil {
		invalid("pipeline.mode", "%q is not local or store", c.Pipeline.Mode)
	}
	if mode == pipeline.ModeLocal && c.Pipeline.LocalDir == "" {
		missing("pipeline.local_dir")
	}
	if c.Pipeline.Workers < 1 {
		invalid("pipeline.workers", "%d is below 1", c.Pipeline.Workers)
	}
	if c.Pipeline.BandwidthLimit < 0 {
		invalid("pipeline.bandwidth_limit", "%d is negative", c.Pipeline.BandwidthLimit)
	}
	if _, err := zstd.LevelFromZstd(c.Pipeline.CompressionLevel); err != nil {
		invalid("pipeline.compression_level", "%v", err)
	}
	if _, err := c.DateRange(); err != nil {
		invalid("pipeline.start_date/end_date", "%v", err)
	}

	if c.Retry.MaxRetries < 0 {
		invalid("retry.max_retries", "%d is negative", c.Retry.MaxRetries)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		invalid("logging.level", "%q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		invalid("logging.format", "%q is not json or text", c.Logging.Format)
	}

	return errs.ErrorOrNil()
}

func validateStore(name string, s StoreConfig, missing func(string), invalid func(string, string, ...any)) {
	switch s.Backend {
	case "s3", "gcs":
		if s.Bucket == "" {
			missing(name + ".bucket")
		}
	case "sftp":
		if s.Host == "" {
			missing(name + ".host")
		}
		if s.User == "" {
			missing(name + ".user")
		}
	case "file":
		if s.Root == "" {
			missing(name + ".root")
		}
	case "memory":
	case "":
		missing(name + ".backend")
	default:
		invalid(name+".backend", "unknown backend %q", s.Backend)
	}
}

// BackendConfig returns the registry configuration for the store. Object
// prefixes are passed to the pipeline separately and are not included.
func (s StoreConfig) BackendConfig() map[string]string {
	m := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("bucket", s.Bucket)
	set("endpoint", s.Endpoint)
	set("region", s.Region)
	set("credentials_file", s.CredentialsFile)
	set("impersonate_service_account", s.ImpersonateServiceAccount)
	set("root", s.Root)
	set("host", s.Host)
	set("user", s.User)
	set("key_file", s.KeyFile)
	set("known_hosts", s.KnownHostsFile)
	if s.Backend == "s3" {
		m["use_path_style"] = strconv.FormatBool(s.UsePathStyle)
	}
	if s.Port > 0 {
		m["port"] = strconv.Itoa(s.Port)
	}
	if s.Timeout > 0 {
		m["timeout"] = s.Timeout.String()
	}
	return m
}

// Naming returns the input and output name suffixes.
func (c *Config) Naming() datekey.Naming {
	return datekey.Naming{InputSuffix: c.Input.Suffix, OutputSuffix: c.Output.Suffix}
}

// Mode returns the publication mode.
func (c *Config) Mode() (pipeline.Mode, error) {
	return pipeline.ParseMode(c.Pipeline.Mode)
}

// DateRange returns the configured inclusive date restriction.
func (c *Config) DateRange() (datekey.Range, error) {
	var r datekey.Range
	var err error
	if c.Pipeline.StartDate != "" {
		if r.Start, err = datekey.Parse(c.Pipeline.StartDate); err != nil {
			return r, err
		}
	}
	if c.Pipeline.EndDate != "" {
		if r.End, err = datekey.Parse(c.Pipeline.EndDate); err != nil {
			return r, err
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("end date %s is before start date %s", r.End, r.Start)
	}
	return r, nil
}

// CompressionLevel returns the Parquet Zstd level.
func (c *Config) CompressionLevel() (zstd.CompressionLevel, error) {
	return zstd.LevelFromZstd(c.Pipeline.CompressionLevel)
}

// RetryConfig returns the retry policy for store operations.
func (c *Config) RetryConfig() *transfer.RetryConfig {
	rc := transfer.DefaultRetryConfig()
	rc.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialDelay > 0 {
		rc.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		rc.MaxDelay = c.Retry.MaxDelay
	}
	return &rc
}

// Filter builds the input object filter.
func (c *Config) Filter() (*filter.Filter, error) {
	var opts []filter.Option
	for _, p := range c.Input.Include {
		opts = append(opts, filter.Include(p))
	}
	for _, p := range c.Input.Exclude {
		opts = append(opts, filter.Exclude(p))
	}
	if c.Pipeline.FilterFile != "" {
		opt, err := filter.FromFile(c.Pipeline.FilterFile)
		if err != nil {
			return nil, fmt.Errorf("config: loading filter file: %w", err)
		}
		opts = append(opts, opt)
	}
	f := filter.New(opts...)
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: input filter: %w", ErrInvalidSetting, err)
	}
	return f, nil
}
