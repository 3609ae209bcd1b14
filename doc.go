// Package dbctx is a metadata-access engine for a relational store. It
// combines a lazily started, bounded connection pool, a two-tier metadata
// cache (a persistent schema index over the entity universe plus a TTL
// object cache for constraints, indexes, routines, and types), and a guarded
// statement executor that classifies SQL with a real tokenizer before
// deciding whether it may run.
//
// The engine is store-agnostic through the driver package; driver/postgres
// is the PostgreSQL implementation. RegisterMCPTools exposes every operation
// as MCP tools for use by language-model agents, with store-derived payloads
// wrapped in untrusted-data boundary markers.
package dbctx
