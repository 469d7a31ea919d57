// Package table implements the work-item record store on Pebble.
//
// Records are keyed by (PartitionKey, RowKey) and stored as JSON documents.
// Keys are lexicographically ordered so a batch partition scans in row-key
// order:
//
//	tbl/{table}/p/{partitionKey}/r/{rowKey}
//
// Writes are last-write-wins; there is no optimistic concurrency on the
// processor's update path. InsertBatch commits all rows in one Pebble batch,
// so a batch either lands whole or not at all.
package table
