// Package tenantdb owns the embedded SQLite store of every tenant.
//
// Each client gets exactly one store, a file named <tenant_id>.db under the
// configured root. Stores never reference each other, so statements against
// different tenants never contend.
//
// # Lifecycle
//
//   - Provision creates the file and its tables (record, setting, file_ref).
//     It is idempotent and concurrent calls for one tenant share a single attempt.
//   - Open returns a handle for an existing store and fails with
//     ErrTenantNotProvisioned otherwise. It never creates a file.
//   - Destroy removes the store and its WAL side files.
//
// # Statements
//
// Execute takes a squirrel builder. Column names are fixed by the caller's
// code; values are always bound parameters. Reads return rows as
// column-to-value maps, writes return affected-row counts. WithTx runs several
// statements in one transaction.
//
// Busy or locked stores are retried with exponential backoff; when the retry
// budget is exhausted the error wraps ErrStoreBusy.
//
// # Pooling
//
// With a positive pool size, open stores are kept in an LRU pool and closed
// after an idle timeout. With pool size zero every call opens and closes its
// own connection.
package tenantdb
