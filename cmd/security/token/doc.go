// Package token generates opaque tokens and hashes them for server-side storage.
//
// A Hasher without a key produces SHA-256 hex digests. With a key (from
// HEARTH_TOKEN_HMAC_KEY) it produces HMAC-SHA256 hex digests. Both are 64 hex
// characters, so stored hashes can be compared with CompareHex.
package token
