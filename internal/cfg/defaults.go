package cfg

// Defaults returns the same values BindFlags registers as flag defaults,
// for callers (tests, mkfs) that build a Config without going through
// viper/pflag.
func Defaults() *Config {
	return &Config{
		Volume: VolumeConfig{
			SizeBytes: 64 << 20,
			AGCount:   4,
			BlockSize: 4096,
			Codec:     CodecPlain,
			RootMode:  0755,
		},
		Cache: CacheConfig{
			MaxEntries:         65536,
			DirtyHighWatermark: 16384,
		},
		Pipeline: PipelineConfig{
			VprocWorkers:     8,
			SioWorkers:       4,
			QueueDepth:       1024,
			DrainTimeoutSecs: 30,
		},
		Logging: LoggingConfig{
			Severity: InfoLogSeverity,
			Format:   "text",
			LogRotate: LogRotateConfig{
				MaxFileSizeMb:   100,
				BackupFileCount: 5,
			},
		},
	}
}
