// Package storage persists the user mapping as one whole-snapshot document.
//
// Every Save replaces the previous snapshot atomically; a reader never sees a
// partially written state. Two drivers exist:
//   - "file": a single indented JSON document replaced via rename
//   - "sqlite": one row per user, all rows replaced inside one transaction
package storage
