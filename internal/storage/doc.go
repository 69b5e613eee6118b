// Package storage provides the persistence layer used by the delivery engine.
//
// It currently supports:
//   - Tenants, recipients, steps, media assets and broadcasts (SQLite)
//   - Write-once media upload references
//   - Recipient progress commits that never move a cursor backwards
package storage
