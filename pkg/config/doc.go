// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with `env` and `envDefault` tags
// (github.com/caarlos0/env). A .env file, when present, is read once before
// the first parse. Structs implementing Validate() error are validated after
// parsing.
//
//	var gov config.Governance
//	if err := config.Load(&gov); err != nil {
//	    return err
//	}
package config
