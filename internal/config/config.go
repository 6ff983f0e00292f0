package config

import (
	"context"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval    = 2
	DefaultTimeout     = 5 * time.Second
	DefaultLogLevel    = string(LogLevelInfo)
	DefaultEnumerator  = "smi"
	DefaultConfigPath  = "/etc/nvidiautil.toml"
	DefaultSnapshotDB  = "/var/lib/nvidiautil/snapshot.db"
	DefaultEnvPrefix   = "NVIDIAUTIL"
	configPathEnvName  = "CONFIG"
	defaultSMIPath     = "nvidia-smi"
	defaultSettingPath = "nvidia-settings"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return LogLevel(fl.Field().String()).IsValid()
	}); err != nil {
		panic(err)
	}

	return v
}

var _ Provider = (*Config)(nil)

type Config struct {
	Interval     int           `mapstructure:"interval" validate:"gte=1,lte=3600"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Metrics      []string      `mapstructure:"metrics" validate:"min=1,dive,required"`
	Enumerator   string        `mapstructure:"enumerator" validate:"oneof=smi nvml"`
	SMIPath      string        `mapstructure:"smi_path" validate:"required"`
	SettingsPath string        `mapstructure:"settings_path" validate:"required"`
	LogLevel     string        `mapstructure:"log_level" validate:"loglevel"`
	LogFile      string        `mapstructure:"log_file"`
	Panel        bool          `mapstructure:"panel"`
	ExporterAddr string        `mapstructure:"exporter_addr" validate:"omitempty,hostname_port"`
	Snapshot     bool          `mapstructure:"snapshot"`
	SnapshotDB   string        `mapstructure:"snapshot_db" validate:"required_if=Snapshot true"`
	PIDFile      string        `mapstructure:"pid_file"`

	v *viper.Viper
}

// RegisterFlags defines the command line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.Int("interval", DefaultInterval, "Interval between updates in seconds")
	fs.Duration("timeout", DefaultTimeout, "Timeout for a single source invocation")
	fs.StringSlice("metrics", metric.DefaultKeys(), "Metrics to collect")
	fs.String("enumerator", DefaultEnumerator, "Device enumerator: smi or nvml")
	fs.String("smi-path", defaultSMIPath, "Path to nvidia-smi")
	fs.String("settings-path", defaultSettingPath, "Path to nvidia-settings")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning or error")
	fs.String("log-file", "", "Write logs to a rotating file")
	fs.Bool("panel", true, "Render the console panel on every update")
	fs.String("exporter-addr", "", "Serve Prometheus metrics on this address")
	fs.Bool("snapshot", false, "Persist latest values to SQLite")
	fs.String("snapshot-db", DefaultSnapshotDB, "Path to the snapshot database")
	fs.String("pid-file", "", "Path to the PID file")
}

// Load reads configuration from defaults, the TOML config file, the
// environment and flags, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	path, explicit := configPath(o, fs)
	if path != "" {
		if err := readConfigFile(v, path, explicit); err != nil {
			return nil, err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("metrics", metric.DefaultKeys())
	v.SetDefault("enumerator", DefaultEnumerator)
	v.SetDefault("smi_path", defaultSMIPath)
	v.SetDefault("settings_path", defaultSettingPath)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("panel", true)
	v.SetDefault("exporter_addr", "")
	v.SetDefault("snapshot", false)
	v.SetDefault("snapshot_db", DefaultSnapshotDB)
	v.SetDefault("pid_file", "")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = errFactory.Wrap(ErrBindFlags, err).WithData(f.Name)
		}
	})

	return bindErr
}

// configPath resolves the file to read. Explicit paths (option, flag or
// environment) must exist; the default path is optional.
func configPath(o *options, fs *pflag.FlagSet) (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			return f.Value.String(), true
		}
	}

	if path, ok := os.LookupEnv(DefaultEnvPrefix + "_" + configPathEnvName); ok {
		return path, path != ""
	}

	return DefaultConfigPath, false
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	errFactory := errors.New()

	if _, err := os.Stat(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return errFactory.Wrap(ErrReadConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errFactory.Wrap(ErrReadConfig, err)
	}

	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Validate checks field constraints and that every metric is known.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return errFactory.Wrap(ErrInvalidConfig, err)
		}

		fe := fieldErrs[0]
		data := FieldError{Field: fe.Field(), Value: fe.Value(), Reason: fe.Tag()}
		switch fe.StructField() {
		case "LogLevel":
			return errFactory.WithData(ErrInvalidLogLevel, data)
		case "Interval":
			return errFactory.WithData(ErrInvalidInterval, data)
		default:
			return errFactory.WithData(ErrInvalidConfig, data)
		}
	}

	if _, err := metric.Select(c.Metrics); err != nil {
		return err
	}

	return nil
}

func (c *Config) GetPeriod() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c *Config) GetTimeout() time.Duration {
	return c.Timeout
}

func (c *Config) GetMetrics() []string {
	return c.Metrics
}

func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// ConfigFile returns the path of the file that was read, if any.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch re-reads the config file when it changes and hands the result to
// fn. Reloads that fail validation are passed as errors. Callbacks stop
// once ctx is done.
func (c *Config) Watch(ctx context.Context, fn func(*Config, error)) error {
	if c.ConfigFile() == "" {
		return errors.New().New(ErrNoConfigFile)
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		next, err := decode(c.v)
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			fn(nil, err)
			return
		}
		fn(next, nil)
	})
	c.v.WatchConfig()

	return nil
}
