package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full mount-time configuration surface, bound from flags
// and/or a YAML file via viper (§9 "mount" operation).
type Config struct {
	Volume   VolumeConfig   `mapstructure:"volume"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

// VolumeConfig describes the backing device and its on-disk format.
type VolumeConfig struct {
	DevicePath string `mapstructure:"device-path"`
	SizeBytes  int64  `mapstructure:"size-bytes"`
	AGCount    int    `mapstructure:"ag-count"`
	BlockSize  int    `mapstructure:"block-size"`
	Codec      Codec  `mapstructure:"codec"`
	KeyFile    string `mapstructure:"key-file"`
	RootMode   Octal  `mapstructure:"root-mode"`
}

// CacheConfig sizes the bounded object cache (C4).
type CacheConfig struct {
	MaxEntries         int `mapstructure:"max-entries"`
	DirtyHighWatermark int `mapstructure:"dirty-high-watermark"`
}

// PipelineConfig sizes the execution pipeline's worker pools (C9).
type PipelineConfig struct {
	VprocWorkers     int `mapstructure:"vproc-workers"`
	SioWorkers       int `mapstructure:"sio-workers"`
	QueueDepth       int `mapstructure:"queue-depth"`
	DrainTimeoutSecs int `mapstructure:"drain-timeout-secs"`
}

// LoggingConfig controls the structured logger and its file rotation.
type LoggingConfig struct {
	Severity  LogSeverity     `mapstructure:"severity"`
	Format    string          `mapstructure:"format"` // "text" or "json"
	File      string          `mapstructure:"file"`   // empty means stderr
	LogRotate LogRotateConfig `mapstructure:"log-rotate"`
}

// LogRotateConfig maps 1:1 onto lumberjack.Logger's fields.
type LogRotateConfig struct {
	MaxFileSizeMb   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

// DebugConfig gates developer-only behaviour.
type DebugConfig struct {
	ExitOnInvariantViolation bool `mapstructure:"exit-on-invariant-violation"`
}

// BindFlags registers every flag on flagSet and binds it into viper under
// the matching dotted key, mirroring each mapstructure tag path.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.StringP("device-path", "d", "", "Path to the backing device or image file.")
	if err := viper.BindPFlag("volume.device-path", flagSet.Lookup("device-path")); err != nil {
		return err
	}

	flagSet.Int64P("size-bytes", "", 64<<20, "Total volume size in bytes, divided evenly across ag-count allocation groups.")
	if err := viper.BindPFlag("volume.size-bytes", flagSet.Lookup("size-bytes")); err != nil {
		return err
	}

	flagSet.IntP("ag-count", "", 4, "Number of allocation groups to stripe the volume across.")
	if err := viper.BindPFlag("volume.ag-count", flagSet.Lookup("ag-count")); err != nil {
		return err
	}

	flagSet.IntP("block-size", "", 4096, "Block size in bytes.")
	if err := viper.BindPFlag("volume.block-size", flagSet.Lookup("block-size")); err != nil {
		return err
	}

	flagSet.StringP("codec", "", string(CodecPlain), "Block codec: plain or authenticated.")
	if err := viper.BindPFlag("volume.codec", flagSet.Lookup("codec")); err != nil {
		return err
	}

	flagSet.StringP("key-file", "", "", "Path to the AEAD key file (required when codec=authenticated).")
	if err := viper.BindPFlag("volume.key-file", flagSet.Lookup("key-file")); err != nil {
		return err
	}

	flagSet.StringP("root-mode", "", "0755", "Permission bits for the root directory, in octal.")
	if err := viper.BindPFlag("volume.root-mode", flagSet.Lookup("root-mode")); err != nil {
		return err
	}

	flagSet.IntP("cache-max-entries", "", 65536, "Maximum resident cache entries across all buckets.")
	if err := viper.BindPFlag("cache.max-entries", flagSet.Lookup("cache-max-entries")); err != nil {
		return err
	}

	flagSet.IntP("cache-dirty-high-watermark", "", 16384, "Dirty entry count, 1..cache-max-entries. Validated only; nothing reads it to trigger flushing.")
	if err := viper.BindPFlag("cache.dirty-high-watermark", flagSet.Lookup("cache-dirty-high-watermark")); err != nil {
		return err
	}

	flagSet.IntP("vproc-workers", "", 8, "Must be positive. The VPROC stage always runs a single worker, whatever this value.")
	if err := viper.BindPFlag("pipeline.vproc-workers", flagSet.Lookup("vproc-workers")); err != nil {
		return err
	}

	flagSet.IntP("sio-workers", "", 4, "SIO stage worker pool size.")
	if err := viper.BindPFlag("pipeline.sio-workers", flagSet.Lookup("sio-workers")); err != nil {
		return err
	}

	flagSet.IntP("queue-depth", "", 1024, "Must be positive. Stage queues are unbounded: this value does not limit them and RX applies no back-pressure.")
	if err := viper.BindPFlag("pipeline.queue-depth", flagSet.Lookup("queue-depth")); err != nil {
		return err
	}

	flagSet.IntP("drain-timeout-secs", "", 30, "Seconds a pipeline drain waits for pending tasks before it fails, or proceeds anyway when forced (0 means 30).")
	if err := viper.BindPFlag("pipeline.drain-timeout-secs", flagSet.Lookup("drain-timeout-secs")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log line format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Log file path; empty logs to stderr.")
	if err := viper.BindPFlag("logging.file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.IntP("log-max-file-size-mb", "", 100, "Rotate the log file once it exceeds this size.")
	if err := viper.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-max-file-size-mb")); err != nil {
		return err
	}

	flagSet.IntP("log-backup-file-count", "", 5, "Rotated log files to retain (0 retains all).")
	if err := viper.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-backup-file-count")); err != nil {
		return err
	}

	flagSet.BoolP("log-compress", "", false, "Gzip rotated log files.")
	if err := viper.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-compress")); err != nil {
		return err
	}

	flagSet.BoolP("debug-exit-on-invariant-violation", "", false, "Exit the process when an internal invariant is violated, instead of panicking.")
	if err := viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug-exit-on-invariant-violation")); err != nil {
		return err
	}

	return nil
}

// Parse decodes v's current state (flags + optional YAML config file
// merged by the caller) into a Config, running the custom scalar decode
// hooks for Octal/Codec/LogSeverity.
func Parse(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, err
	}
	return c, nil
}
