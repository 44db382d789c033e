// Package probes turns probe manifest entries into health descriptors.
//
// Built-in kinds:
//
//	checker  a named collaborator (cache, queue, price feed, database)
//	http     GET a URL; 2xx/3xx up, 429 degraded, anything else down
//	dns      resolve a host name
//	memory   process heap usage
//
// Any entry may ask for probe-internal retries; those happen inside the
// probe's own timeout.
package probes
