package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir is the Pebble store root. Empty means DefaultDataDir().
	DataDir string `json:"dataDir"`
	// HTTPAddr is the HTTP front-door listen address.
	HTTPAddr string `json:"httpAddr"`

	// TableName is the work-item table name inside the store.
	TableName string `json:"tableName"`
	// QueueName is the durable queue name.
	QueueName string `json:"queueName"`

	// Pipeline settings.
	Pipeline PipelineConfig `json:"pipeline"`
	// Orchestration settings.
	Orchestration OrchestrationConfig `json:"orchestration"`
	// GenAI configures the generative-text collaborator.
	GenAI GenAIConfig `json:"genai"`

	// LogLevel is one of debug|info|warn|error.
	LogLevel string `json:"logLevel"`
	// LogFormat is text or json.
	LogFormat string `json:"logFormat"`
	// OTLPEndpoint enables trace export when non-empty (host:port).
	OTLPEndpoint string `json:"otlpEndpoint"`
}

// PipelineConfig tunes the timer-driven producer/consumer path.
type PipelineConfig struct {
	// TickInterval is the scheduler period.
	TickInterval time.Duration `json:"tickInterval"`
	// ItemsPerTick is how many synthetic work items each tick generates.
	ItemsPerTick int `json:"itemsPerTick"`
	// ConsumerGroup names the queue consumer group.
	ConsumerGroup string `json:"consumerGroup"`
	// LeaseMs is the dequeue lease duration in milliseconds.
	LeaseMs int64 `json:"leaseMs"`
	// MaxDeliveries is the attempt ceiling before a message dead-letters.
	MaxDeliveries int `json:"maxDeliveries"`
	// RetryDelayMs delays redelivery after a transient failure.
	RetryDelayMs int64 `json:"retryDelayMs"`
	// Filter is an optional CEL expression selecting which New records the
	// bridge enqueues. Empty selects all.
	Filter string `json:"filter"`
	// Enrich toggles generative enrichment in the record processor.
	Enrich bool `json:"enrich"`
}

// OrchestrationConfig tunes the fan-out/fan-in engine.
type OrchestrationConfig struct {
	// ActivityWorkers bounds concurrent activity executions.
	ActivityWorkers int `json:"activityWorkers"`
	// FanOut is the task count the bundled computation workflow dispatches.
	FanOut int `json:"fanOut"`
}

// GenAIConfig configures the generative-text client.
type GenAIConfig struct {
	// Endpoint is the service base URL. Empty disables remote calls.
	Endpoint string `json:"endpoint"`
	// Deployment is the model/deployment name.
	Deployment string `json:"deployment"`
	// APIVersion is appended as the api-version query parameter.
	APIVersion string `json:"apiVersion"`
	// APIKey authenticates requests. Usually set via ORBITER_GENAI_API_KEY.
	APIKey string `json:"apiKey"`
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `json:"maxRetries"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		TableName: "workitems",
		QueueName: "workitems",
		Pipeline: PipelineConfig{
			TickInterval:  time.Minute,
			ItemsPerTick:  5,
			ConsumerGroup: "processors",
			LeaseMs:       30_000,
			MaxDeliveries: 5,
			RetryDelayMs:  5_000,
			Enrich:        true,
		},
		Orchestration: OrchestrationConfig{
			ActivityWorkers: 8,
			FanOut:          50,
		},
		GenAI: GenAIConfig{
			Deployment: "gpt-4o-mini",
			APIVersion: "2024-06-01",
			MaxRetries: 3,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a JSON file. Empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
