// Package secret resolves credentials referenced from configuration.
//
// Values may contain ${VAR} environment references (strict: an unset
// variable is an error) and secret references of the form
//
//	secretref:env:REDIS_PASSWORD
//	secretref:file:/run/secrets/pricefeed_api_key
//
// Resolution is pluggable through Provider and Registry; DefaultRegistry
// carries the env and file providers.
package secret
