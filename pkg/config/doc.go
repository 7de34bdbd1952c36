// Package config loads authd configuration from defaults, an optional YAML
// file and AUTHD_* environment variables, in that order of precedence.
//
// Server settings:
//
//	AUTHD_HOST="0.0.0.0"
//	AUTHD_PORT="8080"
//	AUTHD_READ_TIMEOUT="15s"
//	AUTHD_WRITE_TIMEOUT="15s"
//	AUTHD_IDLE_TIMEOUT="60s"
//	AUTHD_SHUTDOWN_TIMEOUT="30s"
//
// Store settings:
//
//	AUTHD_DB_TYPE="postgres"  # postgres, memory
//	AUTHD_DB_URL="postgres://localhost/authz"
//	AUTHD_DB_MAX_CONNS="20"
//	AUTHD_DB_MIN_CONNS="2"
//	AUTHD_DB_TIMEOUT="10s"
//
// Cache settings:
//
//	AUTHD_CACHE_TYPE="redis"  # redis, memory
//	AUTHD_REDIS_URL="redis://localhost:6379/0"
//
// Logging and events:
//
//	AUTHD_LOG_LEVEL="info"  # debug, info, warn, error
//	AUTHD_LOG_FORMAT="json" # json, text
//	AUTHD_WEBHOOK_URL="https://hooks.example.com/authz"
//	AUTHD_WEBHOOK_SECRET="..."
//	AUTHD_LOG_EVENTS="true"  # write every domain event to the log
//
// A YAML file named by AUTHD_CONFIG_FILE is applied over the defaults before
// the environment overrides:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
