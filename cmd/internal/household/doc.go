// Package household stores the per-user family data: home notes, recipes,
// weekly shopping lists, expenses and the assistant chat history.
//
// Every operation takes the caller's user id and filters on it. A row owned
// by another user is reported as ErrNotFound, never as forbidden.
package household
