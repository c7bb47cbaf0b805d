package pipeline

// ProgressFunc receives synchronous progress notifications as batches
// finish: overall percent plus done/total template counts. The
// orchestrator calls it inline between batches, so implementations
// must return quickly.
type ProgressFunc func(percent, done, total int)
