// Package cache implements the content-addressed image store. Payloads are
// hashed while they stream into a temp file under StoragePath, committed with
// an atomic rename to <id><ext>, and tracked by an in-memory Index that is
// rebuilt from the directory listing on startup. Cleanup evicts entries older
// than a caller-supplied max age and sweeps abandoned temp files.
//
// HTTP handlers and the eviction trigger depend only on the Store interface,
// so they never touch the directory layout directly.
package cache
