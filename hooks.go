package loom

import "context"

// HookFunc runs at a lifecycle point of an entity mutation. Returning a
// non-nil error from a before-hook (Creating, Updating, Saving, Deleting,
// Restoring) aborts the mutation; after-hooks run once the statement has
// succeeded.
type HookFunc func(ctx context.Context, e *Entity) error

// Hooks groups the lifecycle callbacks of an entity type.
type Hooks struct {
	Creating  []HookFunc
	Created   []HookFunc
	Updating  []HookFunc
	Updated   []HookFunc
	Saving    []HookFunc
	Saved     []HookFunc
	Deleting  []HookFunc
	Deleted   []HookFunc
	Restoring []HookFunc
	Restored  []HookFunc
}

func fireHooks(ctx context.Context, hooks []HookFunc, e *Entity) error {
	for _, h := range hooks {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
