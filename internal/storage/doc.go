// Package storage is the key-value layer behind the task-state records.
//
// Every driver offers single-key Get/Set/Delete and nothing more: no
// transactions and no compare-and-set. Callers that read, decide and then
// write are racing with other writers of the same key.
//
// Drivers:
//   - "redis": shared store for multi-process deployments (Lambda, HTTP replicas)
//   - "sqlite": single-host persistence
//   - "file": dependency-free JSON snapshot + journal
//   - "memory": process-local map
package storage
