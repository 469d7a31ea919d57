package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays ORBITER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	setStr("ORBITER_DATA_DIR", &cfg.DataDir)
	setStr("ORBITER_HTTP_ADDR", &cfg.HTTPAddr)
	setStr("ORBITER_TABLE_NAME", &cfg.TableName)
	setStr("ORBITER_QUEUE_NAME", &cfg.QueueName)

	if v := os.Getenv("ORBITER_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Pipeline.TickInterval = d
		}
	}
	setInt("ORBITER_ITEMS_PER_TICK", &cfg.Pipeline.ItemsPerTick)
	setStr("ORBITER_CONSUMER_GROUP", &cfg.Pipeline.ConsumerGroup)
	setInt64("ORBITER_LEASE_MS", &cfg.Pipeline.LeaseMs)
	setInt("ORBITER_MAX_DELIVERIES", &cfg.Pipeline.MaxDeliveries)
	setInt64("ORBITER_RETRY_DELAY_MS", &cfg.Pipeline.RetryDelayMs)
	setStr("ORBITER_BRIDGE_FILTER", &cfg.Pipeline.Filter)
	if v := os.Getenv("ORBITER_ENRICH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.Enrich = b
		}
	}

	setInt("ORBITER_ACTIVITY_WORKERS", &cfg.Orchestration.ActivityWorkers)
	setInt("ORBITER_FAN_OUT", &cfg.Orchestration.FanOut)

	setStr("ORBITER_GENAI_ENDPOINT", &cfg.GenAI.Endpoint)
	setStr("ORBITER_GENAI_DEPLOYMENT", &cfg.GenAI.Deployment)
	setStr("ORBITER_GENAI_API_VERSION", &cfg.GenAI.APIVersion)
	setStr("ORBITER_GENAI_API_KEY", &cfg.GenAI.APIKey)
	setInt("ORBITER_GENAI_MAX_RETRIES", &cfg.GenAI.MaxRetries)

	setStr("ORBITER_LOG_LEVEL", &cfg.LogLevel)
	setStr("ORBITER_LOG_FORMAT", &cfg.LogFormat)
	setStr("ORBITER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
}
