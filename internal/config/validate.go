package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("transcription.device must be one of auto, cpu, cuda (got %q)", c.Transcription.Device)
	}
	switch c.Transcription.ComputeType {
	case "default", "float16", "int8":
	default:
		return fmt.Errorf("transcription.compute_type must be one of default, float16, int8 (got %q)", c.Transcription.ComputeType)
	}
	if c.Transcription.TimeoutSec <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":         c.Workflow.WorkerCount,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.reaper_interval":      c.Workflow.ReaperInterval,
		"workflow.default_max_attempts": c.Workflow.DefaultMaxAttempts,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryDelay < 0 {
		return errors.New("workflow.retry_delay must not be negative")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	// A timeout at or below the interval would reclaim live claims between
	// two consecutive beats.
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
