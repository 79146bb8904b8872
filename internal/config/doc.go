// Package config handles configuration loading for tower-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TOWER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tower/gateway.yaml
//  3. ~/.config/tower/gateway.yaml
//
// Files with a .toml extension are decoded as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TOWER_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/tower/registry.db"   # clients and accounts
//
//	tenants:
//	  root: "/var/lib/tower/tenants"        # one <tenant_id>.db per client
//	  driver: "sqlite"                      # sqlite (pure Go) or sqlite3 (cgo)
//	  pool_size: 64                         # 0 disables pooling
//	  idle_timeout: "5m"
//	  busy_timeout: "5s"
//	  max_retries: 5
//	  retry_backoff: "20ms"
//
//	auth:
//	  jwt_secret: "${TOWER_JWT_SECRET}"     # at least 32 bytes
//	  token_ttl: "24h"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// TOWER_DB_PATH, when set, replaces database.path before defaults are
// applied. tenants.root defaults to a "tenants" directory next to
// database.path.
package config
