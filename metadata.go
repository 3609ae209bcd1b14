package dbctx

import (
	"context"
	"fmt"
)

// GetEntityDetail returns the full structural description of one entity,
// loading it from the store on first access.
func (d *DBContext) GetEntityDetail(ctx context.Context, name string) (*EntityDetail, error) {
	return d.index.Detail(ctx, name)
}

// SearchEntityNames returns indexed entity names containing term.
func (d *DBContext) SearchEntityNames(ctx context.Context, term string, limit int) ([]string, error) {
	return d.index.SearchNames(ctx, term, limit)
}

// SearchAttributes returns entities having an attribute whose name contains
// term. Over a cold index only a bounded random sample of undescribed
// entities is consulted.
func (d *DBContext) SearchAttributes(ctx context.Context, term string, limit int) (map[string][]Attribute, error) {
	return d.index.SearchAttributes(ctx, term, limit)
}

// EntityNames returns every indexed entity name, sorted.
func (d *DBContext) EntityNames(ctx context.Context) ([]string, error) {
	return d.index.Universe(ctx)
}

// RebuildIndex discards the schema index and re-enumerates the store. The
// previous index survives a failed rebuild.
func (d *DBContext) RebuildIndex(ctx context.Context) error {
	return d.index.rebuild(ctx)
}

// cached serves a value out of an object cache category, invoking load and
// storing the result on a miss or an expired entry. Cache write failures are
// logged and the loaded value is still returned.
func cached[T any](ctx context.Context, d *DBContext, category, key string, load func(context.Context) (T, error)) (T, error) {
	var value T
	if d.cache.Get(category, key, &value) {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := d.cache.Put(category, key, value); err != nil {
		d.logger.Warn().Err(err).Str("category", category).Str("key", key).Msg("object cache put")
	}
	return value, nil
}

// GetCachedCategory is the generic cached-load hook: it returns the cached
// JSON payload for (category, key), or runs load, caches its result, and
// returns the marshaled form.
func (d *DBContext) GetCachedCategory(ctx context.Context, category, key string, load func(context.Context) (any, error)) (any, error) {
	return cached(ctx, d, category, key, load)
}

// EntityConstraints returns the constraints of one table, cached per table.
func (d *DBContext) EntityConstraints(ctx context.Context, table string) ([]ConstraintInfo, error) {
	table = normalizeName(table)
	return cached(ctx, d, CategoryConstraints, table, func(ctx context.Context) ([]ConstraintInfo, error) {
		return d.catalog.Constraints(ctx, table)
	})
}

// EntityIndexes returns the indexes of one table, cached per table.
func (d *DBContext) EntityIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	table = normalizeName(table)
	return cached(ctx, d, CategoryIndexes, table, func(ctx context.Context) ([]IndexInfo, error) {
		return d.catalog.Indexes(ctx, table)
	})
}

// Routines lists stored routines, optionally filtered by kind ("function" or
// "procedure") and a LIKE pattern on the name. Cached per filter pair.
func (d *DBContext) Routines(ctx context.Context, kind, pattern string) ([]RoutineInfo, error) {
	key := fmt.Sprintf("list:%s:%s", kind, pattern)
	return cached(ctx, d, CategoryRoutines, key, func(ctx context.Context) ([]RoutineInfo, error) {
		return d.catalog.Routines(ctx, kind, pattern)
	})
}

// RoutineSource returns the definition of one routine, cached per name.
func (d *DBContext) RoutineSource(ctx context.Context, name string) (string, error) {
	name = normalizeName(name)
	return cached(ctx, d, CategoryRoutines, "source:"+name, func(ctx context.Context) (string, error) {
		return d.catalog.RoutineSource(ctx, name)
	})
}

// UserTypes lists user-defined types, optionally filtered by a LIKE pattern.
func (d *DBContext) UserTypes(ctx context.Context, pattern string) ([]TypeInfo, error) {
	return cached(ctx, d, CategoryTypes, "list:"+pattern, func(ctx context.Context) ([]TypeInfo, error) {
		return d.catalog.UserTypes(ctx, pattern)
	})
}

// DependentObjects lists views and other objects depending on an entity.
// Uncached: dependency edges are cheap to read and change with DDL.
func (d *DBContext) DependentObjects(ctx context.Context, name string) ([]DependentObject, error) {
	return d.catalog.Dependents(ctx, normalizeName(name))
}

// RelatedEntities lists the foreign-key neighborhood of one table.
func (d *DBContext) RelatedEntities(ctx context.Context, table string) (*RelatedTables, error) {
	return d.catalog.RelatedTables(ctx, normalizeName(table))
}

// DatabaseInfo identifies the backing store.
func (d *DBContext) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	return d.catalog.DatabaseInfo(ctx)
}

// CacheStats returns per-category object cache counters.
func (d *DBContext) CacheStats() map[string]CategoryStats {
	stats := d.cache.Stats()
	out := make(map[string]CategoryStats, len(stats))
	for category, s := range stats {
		out[category] = CategoryStats{Hits: s.Hits, Misses: s.Misses, Size: s.Size}
	}
	return out
}

// PoolMetrics returns a snapshot of connection pool state.
func (d *DBContext) PoolMetrics() PoolMetrics {
	m := d.pool.Metrics()
	return PoolMetrics{
		Live:     m.Live,
		Idle:     m.Idle,
		MinConns: m.MinConns,
		MaxConns: m.MaxConns,
		Acquires: m.Acquires,
		Timeouts: m.Timeouts,
		Started:  m.Started,
	}
}
