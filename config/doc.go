// Package config loads smdfu settings with viper.
//
// Sources, lowest priority first: built-in defaults, a YAML, TOML or JSON
// file, SMDFU_* environment variables (dots become underscores, so
// port.name is SMDFU_PORT_NAME) and command-line flags.
//
// Example file:
//
//	port:
//	  name: /dev/ttyACM0
//	  baud: 115200
//	dfu:
//	  chunkSize: 4096
//	  retries: 3
//	  baseAddress: 0x0
//	logging:
//	  level: debug
//	  file:
//	    filename: smdfu.log
package config
