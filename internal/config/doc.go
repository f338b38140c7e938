// Package config manages the slctl configuration file.
//
// The YAML file selects the transport (the in-process simulated chip or a
// bridge daemon), overrides Connection Manager timeouts and remembers the
// networks the chip has joined.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/simplelink/config.yaml or $HOME/.config/simplelink/config.yaml
//   - macOS: $HOME/.config/simplelink/config.yaml
//   - Windows: %LOCALAPPDATA%\simplelink\config.yaml
//
// # Example
//
//	version: 1
//	transport:
//	  kind: bridge
//	  url: ws://192.168.1.20:7681/bridge
//	timeouts:
//	  connect: 20s
//	  provisioning: 2m
//	device_name: kitchen-sensor
//	networks:
//	  home:
//	    security: wpa2
//	    last_ip: 192.168.1.50
//
// # Security
//
// WiFi keys are never written to the file.
package config
