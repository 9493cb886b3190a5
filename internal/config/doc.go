// Package config loads the remoteio daemon configuration.
//
// Configuration is layered: built-in defaults, then a YAML file, then
// REMOTEIO_* environment variables. Validate reports every problem at once.
//
//	cloud:
//	  base_url: "https://api.nodeiot.app.br/api"
//	  socket_port: 5000
//	timing:
//	  debounce: 2s
//	  no_wifi_retry: 10s
//	  disconnected_retry: 60s
//	store:
//	  path: "/var/lib/remoteio/remoteio.db"
package config
