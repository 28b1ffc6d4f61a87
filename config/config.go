/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration values from YAML/JSON files, readers and
// environment variables into configuration objects.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing a key prefix
// under which all of an object's configuration parameters live.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
