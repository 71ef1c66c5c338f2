package core

import "time"

// FQDN grammar constants. A capability's fully-qualified domain name is
// org.project.namespace.action.shortHash — see registry.Registry.Create.
const (
	// FQDNSeparator joins the five FQDN segments.
	FQDNSeparator = "."

	// ShortHashLength is the number of hex characters kept from the
	// code hash when assembling an FQDN's trailing segment.
	ShortHashLength = 4
)

// Redis key prefixes shared by the registry, trace store and checkpoint
// store so a single Redis instance can host all three without collision.
const (
	DefaultRegistryRedisPrefix   = "capgate:registry:"
	DefaultTraceStoreRedisPrefix = "capgate:trace:"
	DefaultCheckpointRedisPrefix = "capgate:checkpoint:"
)

// DefaultTraceRetention bounds how long an execution trace is kept before
// it becomes eligible for eviction, absent an explicit TraceStoreConfig.
const DefaultTraceRetention = 720 * time.Hour
