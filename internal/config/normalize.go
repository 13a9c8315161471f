package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeRealtime()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	clampPositive(&c.Workflow.SLASweepInterval, defaultSLASweepInterval)
	clampPositive(&c.Workflow.RetentionSweepInterval, defaultRetentionSweepInterval)
	clampPositive(&c.Workflow.AnalyticsSweepInterval, defaultAnalyticsSweepInterval)
	clampPositive(&c.Workflow.AnalyticsErrorBackoff, defaultAnalyticsErrorBackoff)
	clampPositive(&c.Workflow.EmitterTickInterval, defaultEmitterTickInterval)
	clampPositive(&c.Workflow.EmitterLookbackWindow, defaultEmitterLookbackWindow)
	clampPositive(&c.Workflow.StaleBreachWindowHours, defaultStaleBreachWindowHours)
	clampPositive(&c.Workflow.StaleBreachResultLimit, defaultStaleBreachResultLimit)
	clampPositive(&c.Workflow.AnalyticsSweepBatchSize, defaultAnalyticsSweepBatchSize)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	c.Notifications.EmailGateway = strings.TrimSpace(c.Notifications.EmailGateway)
	clampPositive(&c.Notifications.RequestTimeout, defaultNotifyRequestTimeout)
	clampPositive(&c.Notifications.RetentionDays, defaultNotifyRetentionDays)
}

func (c *Config) normalizeRealtime() {
	clampPositive(&c.Realtime.MaxConnections, defaultRealtimeMaxConnections)
	clampPositive(&c.Realtime.WriteTimeout, defaultRealtimeWriteTimeout)
	clampPositive(&c.Realtime.PingInterval, defaultRealtimePingInterval)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func clampPositive(value *int, fallback int) {
	if *value <= 0 {
		*value = fallback
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	return filepath.Abs(trimmed)
}
