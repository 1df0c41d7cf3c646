// Package identity owns calcsync user accounts: the user model, password
// hashing, the persistence boundary (memory, Postgres, Redis-cached) and the
// admin bootstrap run at startup.
package identity
