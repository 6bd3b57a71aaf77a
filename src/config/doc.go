// Package config defines the configuration of a dagwatch process.
//
// Whether dagwatch is embedded in Go code or started from the command line, it
// uses the Config object defined in this package to store and forward
// configuration options. The command line additionally looks for an optional
// configuration file in the data directory, Config.DataDir:
//
//  dagwatch.toml // or dagwatch.yaml, dagwatch.json; same keys as the run flags.
//
// When Config.LogDir is set, logs are also written to dagwatch_info.log and
// dagwatch_debug.log in that directory.
package config
