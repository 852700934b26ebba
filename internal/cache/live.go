package cache

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"
)

// Live is a cache that keeps a cached copy as long as the go runtime determines
// the value is live.
//
// Concurrent requests for the same key share one call to the create
// function. Errors are never cached.
// The zero value is safe to use.
//
// See also: [weak.Pointer].
type Live[K ~string, V any] struct {
	m  sync.Map
	sf singleflight.Group
}

// Get returns a pointer to the value associated with the key, calling
// "create" if there's no live value.
func (c *Live[K, V]) Get(ctx context.Context, key K, create CreateFunc[K, V]) (*V, error) {
	if create == nil {
		panic("programmer error: missing create function")
	}
	for {
		value, ok := c.m.Load(key)
		if !ok {
			fn := func() (any, error) {
				// This goroutine may have gone around the loop after finding
				// invalidated entries, so the Context may have expired.
				if ctx.Err() != nil {
					return nil, context.Cause(ctx)
				}
				v, err := create(ctx, key)
				if err != nil {
					return nil, err
				}

				wp := weak.Make(v)
				c.m.Store(key, wp)
				runtime.AddCleanup(v, func(key K) {
					// Only delete if the weak pointer is equal. If it's not,
					// someone else already installed a new pointer.
					c.m.CompareAndDelete(key, wp)
				}, key)
				return v, nil
			}

			ch := c.sf.DoChan(string(key), fn)
			select {
			case res := <-ch:
				if res.Err != nil {
					return nil, res.Err
				}
				return res.Val.(*V), nil
			case <-ctx.Done():
				c.sf.Forget(string(key))
				return nil, context.Cause(ctx)
			}
		}

		if v := value.(weak.Pointer[V]).Value(); v != nil {
			return v, nil
		}
		// Found an entry awaiting cleanup. Eagerly delete it.
		c.m.CompareAndDelete(key, value)
	}
}
