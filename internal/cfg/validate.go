package cfg

import "fmt"

// Validate rejects configurations that would otherwise fail deep inside
// the core with a less legible error (§9 "mount" preconditions).
func Validate(c *Config) error {
	if c.Volume.DevicePath == "" {
		return fmt.Errorf("volume.device-path is required")
	}
	if c.Volume.BlockSize <= 0 || c.Volume.BlockSize&(c.Volume.BlockSize-1) != 0 {
		return fmt.Errorf("volume.block-size must be a power of two, got %d", c.Volume.BlockSize)
	}
	if c.Volume.AGCount <= 0 {
		return fmt.Errorf("volume.ag-count must be positive")
	}
	if c.Volume.SizeBytes <= 0 {
		return fmt.Errorf("volume.size-bytes must be positive")
	}
	if c.Volume.SizeBytes%int64(c.Volume.AGCount) != 0 {
		return fmt.Errorf("volume.size-bytes must divide evenly across volume.ag-count")
	}
	if (c.Volume.SizeBytes/int64(c.Volume.AGCount))%int64(c.Volume.BlockSize) != 0 {
		return fmt.Errorf("volume.size-bytes/ag-count must be a multiple of volume.block-size")
	}
	if c.Volume.Codec == CodecAuthenticated && c.Volume.KeyFile == "" {
		return fmt.Errorf("volume.key-file is required when volume.codec=authenticated")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max-entries must be positive")
	}
	if c.Cache.DirtyHighWatermark <= 0 || c.Cache.DirtyHighWatermark > c.Cache.MaxEntries {
		return fmt.Errorf("cache.dirty-high-watermark must be in (0, max-entries]")
	}
	if c.Pipeline.VprocWorkers <= 0 || c.Pipeline.SioWorkers <= 0 {
		return fmt.Errorf("pipeline.vproc-workers and pipeline.sio-workers must be positive")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue-depth must be positive")
	}
	if c.Pipeline.DrainTimeoutSecs < 0 {
		return fmt.Errorf("pipeline.drain-timeout-secs must not be negative")
	}
	if !isValidSeverity(string(c.Logging.Severity)) {
		return fmt.Errorf("logging.severity invalid: %s", c.Logging.Severity)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %s", c.Logging.Format)
	}
	if c.Logging.File != "" && c.Logging.LogRotate.MaxFileSizeMb <= 0 {
		return fmt.Errorf("logging.log-rotate.max-file-size-mb must be positive when logging.file is set")
	}
	return nil
}
