// Package packdb defines the core types and helpers of an embedded, file-per-record object store.
// It provides record schemas, index and audit log types, the audit generator, retry helpers
// and shared error codes. The file system stores live in the fs package, the compensating
// transaction coordinator in common, and the data root that ties them together in infs.
//
// See `infs.Open` for the entry point most programs want.
package packdb

// Failure model
//
// Every data manager operation runs as a short saga over three stores: the record file,
// its index files and its audit log. A step that fails triggers the compensations registered
// for it, in order, and the operation reports false.
//
// Compensations that touch the record file are retried with the configured RetryPolicy.
// When those retries run out the record is poisoned: a `{id}.poison` report is written next
// to the data file and the OnPoison handler, if any, is notified. Poisoned records stay readable
// but need an operator to reconcile them.
