// Package store provides the central registry for the gateway using SQLite.
//
// # Architecture
//
// The registry records which clients exist, which accounts belong to them,
// and which tenant store each client owns. Tenant data itself never lives
// here; see package tenantdb.
//
//   - ClientStore: clients and their tenant ids
//   - AccountStore: end-user accounts bound to one client
//
// SQLiteStore implements both in a single struct. MockStore is an in-memory
// implementation with the same semantics for unit tests.
//
// # Data Models
//
//   - Client: organization with a unique email and an immutable tenant id
//   - Account: user with a unique email, a bcrypt hash, and an immutable client id
//
// Deleting a client removes its accounts by cascade.
//
// # SQLite Configuration
//
// Every connection is opened with foreign keys enabled and a busy timeout;
// the database runs in WAL mode.
//
// # Error Handling
//
//   - ErrClientNotFound, ErrAccountNotFound: entity does not exist
//   - ErrClientAlreadyExists, ErrAccountAlreadyExists: email already registered
//   - ErrTenantIDTaken: tenant id collision on registration
//
// All errors carry a fault.Kind so transports can map them without string
// matching.
package store
