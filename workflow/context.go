package workflow

import "context"

// sharedContext is the key-value store completed tasks write into and later
// tasks read from. Writes merge monotonically: a later write for the same
// key overwrites the earlier one, and keys are never removed.
type sharedContext struct {
	values map[string]any
}

func newSharedContext() *sharedContext {
	return &sharedContext{values: make(map[string]any)}
}

// merge applies results last-write-wins.
func (c *sharedContext) merge(results map[string]any) {
	for k, v := range results {
		c.values[k] = v
	}
}

// get returns the value for a key.
func (c *sharedContext) get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// snapshot returns a shallow copy safe to hand to executors and condition
// evaluators outside the workflow lock.
func (c *sharedContext) snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// ConditionFunc is an opaque predicate over a context snapshot. The engine
// never interprets expression syntax itself; callers plug in whatever
// evaluator they need.
type ConditionFunc func(ctx context.Context, snapshot map[string]any) (bool, error)
