// Package config loads invoicegate configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and INVOICEGATE_* environment variables.
//
// # YAML File
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	storage:
//	  driver: postgres
//	  dsn: postgres://invoicegate@db/invoicegate?sslmode=disable
//	  max_conns: 20
//	usage:
//	  base_url: https://usage.internal
//	  timeout: 10s
//	observability:
//	  log_level: info
//	  otel_enabled: true
//
// Unknown keys are rejected.
//
// # Environment
//
// Server settings:
//
//	INVOICEGATE_HOST="0.0.0.0"
//	INVOICEGATE_PORT="8080"
//	INVOICEGATE_HEALTH_PORT="9090"
//	INVOICEGATE_READ_TIMEOUT="15s"
//	INVOICEGATE_WRITE_TIMEOUT="30s"
//	INVOICEGATE_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	INVOICEGATE_STORAGE_DRIVER="sqlite"   # sqlite, postgres, memory
//	INVOICEGATE_STORAGE_DSN="file:invoicegate.db"
//	INVOICEGATE_STORAGE_MAX_CONNS="20"
//	INVOICEGATE_STORAGE_BUSY_TIMEOUT="5s"
//
// Usage export settings:
//
//	INVOICEGATE_USAGE_BASE_URL="https://usage.internal"
//	INVOICEGATE_USAGE_TOKEN="..."
//	INVOICEGATE_USAGE_TIMEOUT="10s"
//
// Observability settings:
//
//	INVOICEGATE_LOG_LEVEL="info"          # debug, info, warn, error
//	INVOICEGATE_METRICS_ENABLED="true"
//	INVOICEGATE_OTEL_ENABLED="false"
//	INVOICEGATE_OTEL_ENDPOINT="localhost:4317"
//	INVOICEGATE_OTEL_SAMPLE_RATIO="1"
package config
