package config

const (
	defaultDataDir = "~/.local/share/docflow"
	defaultLogDir  = "~/.local/share/docflow/logs"
	defaultAPIBind = "127.0.0.1:8744"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultSLASweepInterval        = 60
	defaultRetentionSweepInterval  = 3600
	defaultAnalyticsSweepInterval  = 10
	defaultAnalyticsErrorBackoff   = 30
	defaultEmitterTickInterval     = 1
	defaultEmitterLookbackWindow   = 5
	defaultStaleBreachWindowHours  = 24
	defaultStaleBreachResultLimit  = 25
	defaultAnalyticsSweepBatchSize = 50

	defaultNotifyRequestTimeout = 10
	defaultNotifyRetentionDays  = 7

	defaultRealtimeMaxConnections = 256
	defaultRealtimeWriteTimeout   = 10
	defaultRealtimePingInterval   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		SLA: map[string]SLAPolicy{
			"prelims":    {IdealMinutes: 60, MaxMinutes: 120, EscalationMinutes: 90},
			"production": {IdealMinutes: 240, MaxMinutes: 480, EscalationMinutes: 360},
			"quality":    {IdealMinutes: 60, MaxMinutes: 120, EscalationMinutes: 90},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RetentionDays:  defaultNotifyRetentionDays,
		},
		Realtime: Realtime{
			MaxConnections: defaultRealtimeMaxConnections,
			WriteTimeout:   defaultRealtimeWriteTimeout,
			PingInterval:   defaultRealtimePingInterval,
		},
		Workflow: Workflow{
			SLASweepInterval:        defaultSLASweepInterval,
			RetentionSweepInterval:  defaultRetentionSweepInterval,
			AnalyticsSweepInterval:  defaultAnalyticsSweepInterval,
			AnalyticsErrorBackoff:   defaultAnalyticsErrorBackoff,
			EmitterTickInterval:     defaultEmitterTickInterval,
			EmitterLookbackWindow:   defaultEmitterLookbackWindow,
			StaleBreachWindowHours:  defaultStaleBreachWindowHours,
			StaleBreachResultLimit:  defaultStaleBreachResultLimit,
			AnalyticsSweepBatchSize: defaultAnalyticsSweepBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
