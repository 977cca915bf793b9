package dedupe

import "context"

// General contract deduping(redis, in-memory, etc.)
//
// The pipeline use it in two steps: cheap Seen peek before the expensive
// safety evaluation, then atomic TryMark right before enqueue. Only the
// caller who got first=true may enqueue the alert.
type Deduper interface {
	// peek only, never marks; alreadySeen=true -> alert for this id was claimed before
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)

	// atomic check-and-mark; first=true -> this caller owns the id
	TryMark(ctx context.Context, id string) (first bool, err error)

	// current set size
	Len(ctx context.Context) (int, error)

	// wholesale eviction; housekeeping calls this when the set grows above bound
	Clear(ctx context.Context) error
}
