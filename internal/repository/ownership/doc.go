// Package ownership keeps console session records in memory.
//
// Writers are serialized per owner; readers get immutable snapshots, so the
// arbiter can read a record without waiting on a heartbeat in progress.
package ownership
