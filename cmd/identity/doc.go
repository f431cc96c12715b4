// Package identity owns hearth accounts: the users table, their credentials,
// and email normalization.
//
// Passwords are hashed with cmd/security/password before they reach a Store.
// IDs are ULIDs from cmd/identity/ids.
package identity
