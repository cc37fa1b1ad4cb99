// Package capability connects to agents over their declared protocol, lists
// their tools and derives a capability profile from well-known tool names.
//
// A Profile carries at most one block per agent kind (sales, creative,
// signals). InferTypeFromProfile returns the kind when exactly one block is
// populated and unknown otherwise, so an agent exposing both sales and
// creative tools is not assigned a type.
//
// Profiles are cached for 15 minutes behind the Cache interface. MemoryCache
// takes an injectable clock; RedisCache shares entries across instances.
// Failed discoveries are returned with DiscoveryError set and never cached.
package capability
