// Package config handles configuration loading for gatekeeper.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from GATEKEEPER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/gatekeeper/config.yaml
//  3. ~/.config/gatekeeper/config.yaml
//
// A missing file at locations 2 and 3 means defaults. Files ending in .toml
// are parsed as TOML, everything else as YAML.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	session:
//	  redis_url: "${REDIS_URL}"
//
// GATEKEEPER_* variables override file values after parsing:
//
//	GATEKEEPER_API_BASE_URL, GATEKEEPER_API_TIMEOUT, GATEKEEPER_AUTH_PRECEDENCE,
//	GATEKEEPER_REQUEST_ID_HEADER, GATEKEEPER_SESSION_BACKEND, GATEKEEPER_SESSION_PATH,
//	GATEKEEPER_REDIS_URL, GATEKEEPER_REDIS_PREFIX, GATEKEEPER_LOG_LEVEL,
//	GATEKEEPER_LOG_FORMAT, GATEKEEPER_METRICS_ENABLED
//
// GATEKEEPER_TOKEN and GATEKEEPER_ROLE replace the stored session entirely.
//
// # Example
//
//	api:
//	  base_url: "http://127.0.0.1:5000/api"
//	  timeout: "30s"
//	  auth_precedence: "session"   # or "caller"
//	  request_id_header: "X-Request-Id"
//
//	session:
//	  backend: "sqlite"            # memory, file, sqlite, redis
//	  path: "./session.db"
//
//	guard:
//	  homes:
//	    admin: "admin-dashboard"
//	  default_home: "user-dashboard"
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
// Routes may be declared under routes; without any, the built-in parking
// client table is used.
package config
