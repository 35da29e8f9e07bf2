// Package fence provides read-only fence lookups by farm.
//
// StaticSource serves fences from configuration, GormSource reads them from
// PostgreSQL, and CachedSource memoizes any source for a short time so the
// ingestion path does not query the database on every position.
package fence
