package config

import "github.com/spf13/viper"

// DefaultEnginePath is the engine binary, relative to the relay executable.
const DefaultEnginePath = "bin/client_app.out"

// DefaultJournalPath is where the event journal lives when enabled.
const DefaultJournalPath = "~/.othello-relay/journal.db"

// SetDefaults registers the default of every key with viper.
func SetDefaults() {
	d := Default()

	// Gateway
	viper.SetDefault("gateway.port", d.Gateway.Port)
	viper.SetDefault("gateway.host", d.Gateway.Host)
	viper.SetDefault("gateway.shutdown_timeout", d.Gateway.ShutdownTimeout)
	viper.SetDefault("gateway.rate_limit.enabled", d.Gateway.RateLimit.Enabled)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", d.Gateway.RateLimit.RequestsPerMinute)
	viper.SetDefault("gateway.rate_limit.burst", d.Gateway.RateLimit.Burst)

	// Engine
	viper.SetDefault("engine.path", d.Engine.Path)
	viper.SetDefault("engine.args", d.Engine.Args)
	viper.SetDefault("engine.env", d.Engine.Env)
	viper.SetDefault("engine.dir", "")
	viper.SetDefault("engine.restart_delay", d.Engine.RestartDelay)
	viper.SetDefault("engine.max_restarts", d.Engine.MaxRestarts)
	viper.SetDefault("engine.watch_binary", false)

	// Viewer connections
	viper.SetDefault("viewer.write_wait", d.Viewer.WriteWait)
	viper.SetDefault("viewer.pong_wait", d.Viewer.PongWait)
	viper.SetDefault("viewer.ping_period", d.Viewer.PingPeriod)
	viper.SetDefault("viewer.max_message_size", d.Viewer.MaxMessageSize)
	viper.SetDefault("viewer.send_buffer", d.Viewer.SendBuffer)
	viper.SetDefault("viewer.allowed_origins", d.Viewer.AllowedOrigins)

	// Journal
	viper.SetDefault("journal.enabled", d.Journal.Enabled)
	viper.SetDefault("journal.path", d.Journal.Path)
	viper.SetDefault("journal.retention", d.Journal.Retention)
	viper.SetDefault("journal.prune_schedule", d.Journal.PruneSchedule)
	viper.SetDefault("journal.buffer_size", d.Journal.BufferSize)

	// Log
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
	viper.SetDefault("log.file", "")
}
