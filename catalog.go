package dbctx

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbctx/dbctx/driver"
	"github.com/dbctx/dbctx/internal/pool"
)

// catalog reads structural metadata from the store's system catalogs. It
// backs the schema index (as its entityStore) and the uncached metadata
// operations. Every method borrows a pool connection for the duration of
// the call and rolls back on the way out.
type catalog struct {
	pool   *pool.Pool
	schema string
}

func newCatalog(p *pool.Pool, schema string) *catalog {
	return &catalog{pool: p, schema: schema}
}

// withConn runs fn on a borrowed connection. The implicit transaction is
// rolled back afterwards with a detached context so cleanup survives caller
// cancellation.
func (c *catalog) withConn(ctx context.Context, fn func(driver.Conn) error) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Rollback(context.WithoutCancel(ctx))
		c.pool.Release(conn)
	}()
	return fn(conn)
}

const entityNamesSQL = `
SELECT c.relname
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1
  AND c.relkind IN ('r', 'p')
ORDER BY c.relname;`

func (c *catalog) EntityNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.withConn(ctx, func(conn driver.Conn) error {
		rows, err := conn.Query(ctx, entityNamesSQL, c.schema)
		if err != nil {
			return &StoreError{Cause: err}
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return &StoreError{Cause: err}
			}
			names = append(names, name)
		}
		if err := rows.Err(); err != nil {
			return &StoreError{Cause: err}
		}
		return nil
	})
	return names, err
}

const entityExistsSQL = `
SELECT EXISTS (
  SELECT 1
  FROM pg_catalog.pg_class c
  JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
  WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'p')
);`

const attributesSQL = `
SELECT col.column_name,
       col.data_type,
       col.is_nullable = 'YES'
FROM information_schema.columns col
WHERE col.table_schema = $1 AND col.table_name = $2
ORDER BY col.ordinal_position;`

// relationshipsSQL lists both directions of the foreign-key neighborhood of
// one table, one row per column pair. unnest zips conkey with confkey so
// composite keys keep their column pairing.
const relationshipsSQL = `
SELECT 'outgoing' AS direction,
       a.attname  AS local_column,
       fc.relname AS other_table,
       fa.attname AS foreign_column
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(attnum, fattnum)
JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
JOIN pg_catalog.pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
WHERE con.contype = 'f' AND n.nspname = $1 AND c.relname = $2

UNION ALL

SELECT 'incoming',
       fa.attname,
       c.relname,
       a.attname
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
JOIN pg_catalog.pg_namespace fn ON fn.oid = fc.relnamespace
CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(attnum, fattnum)
JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
JOIN pg_catalog.pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
WHERE con.contype = 'f' AND fn.nspname = $1 AND fc.relname = $2;`

func (c *catalog) EntityDetail(ctx context.Context, name string) (*EntityDetail, bool, error) {
	detail := &EntityDetail{Name: name, Relationships: make(map[string][]RelationshipLink)}
	found := false
	err := c.withConn(ctx, func(conn driver.Conn) error {
		rows, err := conn.Query(ctx, entityExistsSQL, c.schema, name)
		if err != nil {
			return &StoreError{Cause: err}
		}
		if rows.Next() {
			if err := rows.Scan(&found); err != nil {
				rows.Close()
				return &StoreError{Cause: err}
			}
		}
		rows.Close()
		if !found {
			return nil
		}

		rows, err = conn.Query(ctx, attributesSQL, c.schema, name)
		if err != nil {
			return &StoreError{Cause: err}
		}
		for rows.Next() {
			var a Attribute
			if err := rows.Scan(&a.Name, &a.Type, &a.Nullable); err != nil {
				rows.Close()
				return &StoreError{Cause: err}
			}
			detail.Attributes = append(detail.Attributes, a)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return &StoreError{Cause: err}
		}
		rows.Close()

		rows, err = conn.Query(ctx, relationshipsSQL, c.schema, name)
		if err != nil {
			return &StoreError{Cause: err}
		}
		defer rows.Close()
		for rows.Next() {
			var link RelationshipLink
			var other string
			if err := rows.Scan(&link.Direction, &link.LocalColumn, &other, &link.ForeignColumn); err != nil {
				return &StoreError{Cause: err}
			}
			detail.Relationships[other] = append(detail.Relationships[other], link)
		}
		if err := rows.Err(); err != nil {
			return &StoreError{Cause: err}
		}
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return detail, true, nil
}

const constraintsSQL = `
SELECT con.conname,
       CASE con.contype
         WHEN 'p' THEN 'PRIMARY KEY'
         WHEN 'f' THEN 'FOREIGN KEY'
         WHEN 'u' THEN 'UNIQUE'
         WHEN 'c' THEN 'CHECK'
         WHEN 'x' THEN 'EXCLUSION'
         ELSE con.contype::text
       END,
       pg_catalog.pg_get_constraintdef(con.oid, true)
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2
ORDER BY con.conname;`

func (c *catalog) Constraints(ctx context.Context, table string) ([]ConstraintInfo, error) {
	out := make([]ConstraintInfo, 0)
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, constraintsSQL, []any{c.schema, table}, func(rows driver.Rows) error {
			var ci ConstraintInfo
			if err := rows.Scan(&ci.Name, &ci.Type, &ci.Definition); err != nil {
				return err
			}
			out = append(out, ci)
			return nil
		})
	})
	return out, err
}

const indexesSQL = `
SELECT i.indexname,
       i.indexdef,
       idx.indisunique,
       idx.indisprimary
FROM pg_catalog.pg_indexes i
JOIN pg_catalog.pg_class c ON c.relname = i.indexname
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace AND n.nspname = i.schemaname
JOIN pg_catalog.pg_index idx ON idx.indexrelid = c.oid
WHERE i.schemaname = $1 AND i.tablename = $2
ORDER BY i.indexname;`

func (c *catalog) Indexes(ctx context.Context, table string) ([]IndexInfo, error) {
	out := make([]IndexInfo, 0)
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, indexesSQL, []any{c.schema, table}, func(rows driver.Rows) error {
			var ii IndexInfo
			if err := rows.Scan(&ii.Name, &ii.Definition, &ii.IsUnique, &ii.IsPrimary); err != nil {
				return err
			}
			out = append(out, ii)
			return nil
		})
	})
	return out, err
}

const routinesSQL = `
SELECT p.proname,
       CASE p.prokind
         WHEN 'f' THEN 'function'
         WHEN 'p' THEN 'procedure'
         WHEN 'a' THEN 'aggregate'
         WHEN 'w' THEN 'window'
         ELSE p.prokind::text
       END AS kind,
       pg_catalog.pg_get_function_identity_arguments(p.oid),
       COALESCE(pg_catalog.pg_get_function_result(p.oid), '')
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = $1
  AND ($2 = '' OR p.proname LIKE $2)
  AND ($3 = '' OR CASE p.prokind
        WHEN 'f' THEN 'function'
        WHEN 'p' THEN 'procedure'
        WHEN 'a' THEN 'aggregate'
        WHEN 'w' THEN 'window'
        ELSE p.prokind::text
      END = $3)
ORDER BY p.proname;`

// Routines lists stored routines, optionally filtered by kind ("function",
// "procedure") and a LIKE pattern on the name.
func (c *catalog) Routines(ctx context.Context, kind, pattern string) ([]RoutineInfo, error) {
	out := make([]RoutineInfo, 0)
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, routinesSQL, []any{c.schema, pattern, strings.ToLower(kind)}, func(rows driver.Rows) error {
			var ri RoutineInfo
			if err := rows.Scan(&ri.Name, &ri.Kind, &ri.Arguments, &ri.Result); err != nil {
				return err
			}
			out = append(out, ri)
			return nil
		})
	})
	return out, err
}

const routineSourceSQL = `
SELECT pg_catalog.pg_get_functiondef(p.oid)
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = $1 AND p.proname = $2
ORDER BY p.oid
LIMIT 1;`

// RoutineSource returns the full definition of one routine. Overloads share
// a name; the oldest overload wins.
func (c *catalog) RoutineSource(ctx context.Context, name string) (string, error) {
	var src string
	found := false
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, routineSourceSQL, []any{c.schema, name}, func(rows driver.Rows) error {
			found = true
			return rows.Scan(&src)
		})
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: routine %s", ErrNotFound, name)
	}
	return src, nil
}

const userTypesSQL = `
SELECT t.typname,
       CASE t.typtype
         WHEN 'c' THEN 'composite'
         WHEN 'e' THEN 'enum'
         WHEN 'd' THEN 'domain'
         WHEN 'r' THEN 'range'
         ELSE t.typtype::text
       END
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1
  AND t.typtype IN ('c', 'e', 'd', 'r')
  AND ($2 = '' OR t.typname LIKE $2)
  AND (t.typrelid = 0 OR EXISTS (
        SELECT 1 FROM pg_catalog.pg_class cl
        WHERE cl.oid = t.typrelid AND cl.relkind = 'c'))
ORDER BY t.typname;`

const typeAttributesSQL = `
SELECT a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod)
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_type t ON t.typrelid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1 AND t.typname = $2 AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum;`

const typeLabelsSQL = `
SELECT e.enumlabel
FROM pg_catalog.pg_enum e
JOIN pg_catalog.pg_type t ON t.oid = e.enumtypid
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1 AND t.typname = $2
ORDER BY e.enumsortorder;`

// UserTypes lists user-defined types with their composite attributes or enum
// labels, optionally filtered by a LIKE pattern.
func (c *catalog) UserTypes(ctx context.Context, pattern string) ([]TypeInfo, error) {
	out := make([]TypeInfo, 0)
	err := c.withConn(ctx, func(conn driver.Conn) error {
		err := scanAll(ctx, conn, userTypesSQL, []any{c.schema, pattern}, func(rows driver.Rows) error {
			var ti TypeInfo
			if err := rows.Scan(&ti.Name, &ti.Category); err != nil {
				return err
			}
			out = append(out, ti)
			return nil
		})
		if err != nil {
			return err
		}
		for i := range out {
			switch out[i].Category {
			case "composite":
				err = scanAll(ctx, conn, typeAttributesSQL, []any{c.schema, out[i].Name}, func(rows driver.Rows) error {
					var a Attribute
					if err := rows.Scan(&a.Name, &a.Type); err != nil {
						return err
					}
					out[i].Attributes = append(out[i].Attributes, a)
					return nil
				})
			case "enum":
				err = scanAll(ctx, conn, typeLabelsSQL, []any{c.schema, out[i].Name}, func(rows driver.Rows) error {
					var label string
					if err := rows.Scan(&label); err != nil {
						return err
					}
					out[i].Labels = append(out[i].Labels, label)
					return nil
				})
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// dependentsSQL finds views and materialized views whose rewrite rules
// reference the table.
const dependentsSQL = `
SELECT DISTINCT dn.nspname,
       dc.relname,
       CASE dc.relkind
         WHEN 'v' THEN 'view'
         WHEN 'm' THEN 'materialized view'
         ELSE 'relation'
       END
FROM pg_catalog.pg_depend d
JOIN pg_catalog.pg_rewrite r ON r.oid = d.objid
JOIN pg_catalog.pg_class dc ON dc.oid = r.ev_class
JOIN pg_catalog.pg_class sc ON sc.oid = d.refobjid
JOIN pg_catalog.pg_namespace sn ON sn.oid = sc.relnamespace
JOIN pg_catalog.pg_namespace dn ON dn.oid = dc.relnamespace
WHERE d.deptype = 'n'
  AND sn.nspname = $1
  AND sc.relname = $2
  AND dc.relname <> sc.relname
ORDER BY dn.nspname, dc.relname;`

func (c *catalog) Dependents(ctx context.Context, name string) ([]DependentObject, error) {
	out := make([]DependentObject, 0)
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, dependentsSQL, []any{c.schema, name}, func(rows driver.Rows) error {
			var d DependentObject
			if err := rows.Scan(&d.Schema, &d.Name, &d.Kind); err != nil {
				return err
			}
			out = append(out, d)
			return nil
		})
	})
	return out, err
}

const referencedTablesSQL = `
SELECT DISTINCT fc.relname
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
WHERE con.contype = 'f' AND n.nspname = $1 AND c.relname = $2
ORDER BY fc.relname;`

const referencingTablesSQL = `
SELECT DISTINCT c.relname
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
JOIN pg_catalog.pg_namespace fn ON fn.oid = fc.relnamespace
WHERE con.contype = 'f' AND fn.nspname = $1 AND fc.relname = $2
ORDER BY c.relname;`

func (c *catalog) RelatedTables(ctx context.Context, table string) (*RelatedTables, error) {
	rt := &RelatedTables{ReferencedTables: []string{}, ReferencingTables: []string{}}
	err := c.withConn(ctx, func(conn driver.Conn) error {
		err := scanAll(ctx, conn, referencedTablesSQL, []any{c.schema, table}, func(rows driver.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			rt.ReferencedTables = append(rt.ReferencedTables, name)
			return nil
		})
		if err != nil {
			return err
		}
		return scanAll(ctx, conn, referencingTablesSQL, []any{c.schema, table}, func(rows driver.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			rt.ReferencingTables = append(rt.ReferencingTables, name)
			return nil
		})
	})
	return rt, err
}

const versionSQL = `SELECT version();`

func (c *catalog) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	info := &DatabaseInfo{Vendor: "PostgreSQL", Schema: c.schema}
	err := c.withConn(ctx, func(conn driver.Conn) error {
		return scanAll(ctx, conn, versionSQL, nil, func(rows driver.Rows) error {
			return rows.Scan(&info.Version)
		})
	})
	return info, err
}

// scanAll runs sql and feeds each row to scan, wrapping store failures.
func scanAll(ctx context.Context, conn driver.Conn, sql string, args []any, scan func(driver.Rows) error) error {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return &StoreError{Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return &StoreError{Cause: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &StoreError{Cause: err}
	}
	return nil
}
