// Package config provides luadap's settings.
//
// Settings are resolved in layers, each overriding the one below:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (applied by the caller)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← LUADAP_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← luadap.toml / luadap.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # Sub-packages
//
//   - loader: file (TOML, YAML) and environment loading into nested maps
//   - watcher: fsnotify-based change detection for live reload
//
// # File Format
//
//	[runtime]
//	host = "127.0.0.1"
//	port = 19542
//	dialTimeout = "5s"
//
//	[log]
//	level = "info"
//	file = "/tmp/luadap.log"
//
//	[listen]
//	mode = "stdio"        # stdio, tcp or ws
//	address = "127.0.0.1:4711"
//	path = "/dap"
//	allowOrigins = ["https://editor.example.com"]   # loopback origins are always accepted
//
//	[sources]
//	roots = ["./game"]
//	patterns = ["**/*.lua"]
//
// Only the log level is applied on live reload; every other setting needs a
// restart.
package config
