package keys

import "strconv"

// Cache returns the storage key of a cache entry.
func Cache(ns, key string) string { return "cache:" + ns + ":" + key }

// Rebuild returns the lock name guarding rebuilds of a cache entry.
// Distinct from Cache so the lock never collides with the entry itself.
func Rebuild(ns, key string) string { return "rebuild:" + ns + ":" + key }

// Gen returns the generation counter key of a cache storage key.
func Gen(storageKey string) string { return "gen:" + storageKey }

// Lock returns the storage key of a lock lease.
func Lock(name string) string { return "lock:" + name }

func Stock(resourceID int64) string  { return "seckill:stock:" + id(resourceID) }
func Window(resourceID int64) string { return "seckill:window:" + id(resourceID) }
func Marker(resourceID int64) string { return "seckill:order:" + id(resourceID) }

// Requester returns the per-requester lock name used by the order worker.
func Requester(requesterID int64) string { return "order:" + id(requesterID) }

func id(v int64) string { return strconv.FormatInt(v, 10) }
