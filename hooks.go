package flashguard

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on request paths.
// Wrap a slow implementation with hooks/async.
type Hooks interface {
	// A negative marker was written for a key with no backing record.
	NegativeCached(storageKey string)

	// An async rebuild of a logically expired entry was submitted.
	RebuildScheduled(storageKey string)
	// A rebuild was not performed.
	// reason ∈ {"lock_held", "pool_full", "lock_error", "gen_moved", "closed"}
	RebuildSkipped(storageKey, reason string)
	// The loader or the write-back of a rebuild failed.
	RebuildFailed(storageKey string, err error)

	// An entry was deleted on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// The admission script ran.
	// outcome ∈ {"ok", "insufficient_stock", "duplicate_request", "not_started", "ended", "error"}
	Admission(resourceID int64, outcome string)

	// The worker committed (or found already committed) an order.
	OrderCommitted(resourceID int64, duplicate bool)
	// The worker failed to process a record; it stays pending.
	OrderFailed(streamID string, err error)
	// The pending-list drain finished; count records were processed.
	PendingRecovered(count int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) NegativeCached(string)         {}
func (NopHooks) RebuildScheduled(string)       {}
func (NopHooks) RebuildSkipped(string, string) {}
func (NopHooks) RebuildFailed(string, error)   {}
func (NopHooks) SelfHeal(string, string)       {}
func (NopHooks) Admission(int64, string)       {}
func (NopHooks) OrderCommitted(int64, bool)    {}
func (NopHooks) OrderFailed(string, error)     {}
func (NopHooks) PendingRecovered(int)          {}
