// Package config loads the migrator's environment-driven configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Snapshot sources.
const (
	SourceFile   = "file"
	SourceGCS    = "gcs"
	SourceSQLite = "sqlite"
)

// Remote backends.
const (
	BackendBigQuery = "bigquery"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendNotion   = "notion"
	BackendMemory   = "memory"
)

var (
	validSources  = []string{SourceFile, SourceGCS, SourceSQLite}
	validBackends = []string{BackendBigQuery, BackendDynamoDB, BackendSQLite, BackendNotion, BackendMemory}
)

type Config struct {
	LogLevel string

	// HTTP Server
	Port string

	// Snapshot source
	SnapshotSource     string
	SnapshotDir        string
	SnapshotBucket     string
	SnapshotPrefix     string
	SnapshotSQLitePath string
	SnapshotSQLiteKey  string

	// Remote backend
	RemoteBackend       string
	EnsureTables        bool
	GCPProjectID        string
	BQDataset           string
	DynamoDBRegion      string
	DynamoDBEndpoint    string
	DynamoDBTablePrefix string
	RemoteSQLitePath    string
	NotionToken         string
	NotionDatabases     string

	// Migration
	UnitConcurrency int
	RunTimeout      time.Duration

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPProgressKey string

	// Jobs
	JobBuffer  int
	JobWorkers int
}

func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		SnapshotSource:     getEnv("SNAPSHOT_SOURCE", SourceFile),
		SnapshotDir:        getEnv("SNAPSHOT_DIR", "./data/snapshots"),
		SnapshotBucket:     getEnv("SNAPSHOT_BUCKET", ""),
		SnapshotPrefix:     getEnv("SNAPSHOT_PREFIX", "snapshots/"),
		SnapshotSQLitePath: getEnv("SNAPSHOT_SQLITE_PATH", "./data/device.db"),
		SnapshotSQLiteKey:  getEnv("SNAPSHOT_SQLITE_KEY", "finance-app-state"),

		RemoteBackend:       getEnv("REMOTE_BACKEND", BackendMemory),
		EnsureTables:        getEnvBool("ENSURE_TABLES", false),
		GCPProjectID:        getEnv("GCP_PROJECT_ID", ""),
		BQDataset:           getEnv("BQ_DATASET", "finance"),
		DynamoDBRegion:      getEnv("DYNAMODB_REGION", "eu-west-1"),
		DynamoDBEndpoint:    getEnv("DYNAMODB_ENDPOINT", ""),
		DynamoDBTablePrefix: getEnv("DYNAMODB_TABLE_PREFIX", ""),
		RemoteSQLitePath:    getEnv("REMOTE_SQLITE_PATH", "./data/remote.db"),
		NotionToken:         getEnv("NOTION_TOKEN", ""),
		NotionDatabases:     getEnv("NOTION_DATABASES", ""),

		UnitConcurrency: getEnvInt("UNIT_CONCURRENCY", 1),
		RunTimeout:      getEnvDuration("RUN_TIMEOUT", 10*time.Minute),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "finance"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "migrations"),
		AMQPProgressKey: getEnv("AMQP_PROGRESS_KEY", "migration.progress"),

		JobBuffer:  getEnvInt("JOB_BUFFER", 100),
		JobWorkers: getEnvInt("JOB_WORKERS", 2),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validSources, c.SnapshotSource) {
		errors = append(errors, fmt.Sprintf("invalid snapshot source '%s': must be one of %v", c.SnapshotSource, validSources))
	}
	switch c.SnapshotSource {
	case SourceFile:
		if c.SnapshotDir == "" {
			errors = append(errors, "SNAPSHOT_DIR is required when using the file snapshot source")
		}
	case SourceGCS:
		if c.SnapshotBucket == "" {
			errors = append(errors, "SNAPSHOT_BUCKET is required when using the gcs snapshot source")
		}
	case SourceSQLite:
		if c.SnapshotSQLitePath == "" {
			errors = append(errors, "SNAPSHOT_SQLITE_PATH is required when using the sqlite snapshot source")
		}
	}

	if !slices.Contains(validBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}
	switch c.RemoteBackend {
	case BackendBigQuery:
		if c.GCPProjectID == "" {
			errors = append(errors, "GCP_PROJECT_ID is required when using the bigquery backend")
		}
		if c.BQDataset == "" {
			errors = append(errors, "BQ_DATASET is required when using the bigquery backend")
		}
	case BackendDynamoDB:
		if c.DynamoDBRegion == "" {
			errors = append(errors, "DYNAMODB_REGION is required when using the dynamodb backend")
		}
	case BackendSQLite:
		if c.RemoteSQLitePath == "" {
			errors = append(errors, "REMOTE_SQLITE_PATH is required when using the sqlite backend")
		}
	case BackendNotion:
		if c.NotionToken == "" {
			errors = append(errors, "NOTION_TOKEN is required when using the notion backend")
		}
		if c.NotionDatabases == "" {
			errors = append(errors, "NOTION_DATABASES is required when using the notion backend")
		}
	}

	if c.UnitConcurrency < 1 || c.UnitConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid unit concurrency %d: must be between 1 and 64", c.UnitConcurrency))
	}
	if c.RunTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid run timeout %v: must be at least 1 second", c.RunTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.JobBuffer < 1 {
		errors = append(errors, fmt.Sprintf("invalid job buffer %d: must be at least 1", c.JobBuffer))
	}
	if c.JobWorkers < 1 {
		errors = append(errors, fmt.Sprintf("invalid job workers %d: must be at least 1", c.JobWorkers))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
