// Package session owns server-side sessions for hearth accounts.
//
// A session is a row with a hashed opaque refresh token. Access tokens are
// short-lived PASETO v4.public tokens naming the user and the session; every
// validation re-reads the row, so a revoked session stops working at once.
// Refresh rotation replaces the row, and presenting an already rotated
// refresh token revokes every session of the account.
//
// Provisioning tokens are a second PASETO kind bound to a single user. They
// carry no session and are accepted only where profile setup happens.
package session
