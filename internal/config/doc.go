// Package config loads the codememory configuration with viper.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables prefixed with CODEMEMORY_ where dots in the key become
// underscores (CODEMEMORY_STORAGE_DRIVER sets storage.driver). DATABASE_URL
// is accepted for storage.database_url. Provider API keys are read by the
// providers themselves from their usual variables.
package config
