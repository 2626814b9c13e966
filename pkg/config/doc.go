// Package config loads the agent configuration from <app-data>/config.json.
//
// The file is JSON in practice but is decoded with a YAML parser, so a
// hand-written YAML file works too. Keys the file omits keep the values from
// Default. deployment_id may be a number or a string.
package config
