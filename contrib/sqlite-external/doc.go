// Package sqliteexternal links the optional CGO SQLite driver.
//
// It is imported by core/sqlite when building with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/juniperbot
//
// Without the tag the bot uses the pure Go modernc.org/sqlite driver and
// this package is empty. The CGO driver is faster on large corpora but
// gives up cross-compilation and single-binary deployment.
package sqliteexternal
