// Package cache is the caching layer in front of slow dependencies.
//
// MemoryCache and RedisCache implement Cache and count hits and misses for
// the detailed health metrics. Both also implement health.Checker so the
// cache itself shows up as a dependency. Loader adds read-through loading
// with per-key deduplication on top of any Cache.
package cache
