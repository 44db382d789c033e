// Package pricefeed is a client for a CoinGecko-style price API.
//
// Calls run through a resilience.Executor and quotes are cached through a
// cache.Loader. The client implements health.Checker so the upstream can
// be registered as a probe.
package pricefeed
