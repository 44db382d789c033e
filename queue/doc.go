// Package queue provides a Redis list-backed job queue for background
// work such as price refreshes.
//
// RedisQueue implements health.Checker: the queue is degraded once its
// backlog reaches MaxBacklog and unhealthy when Redis cannot be reached.
package queue
