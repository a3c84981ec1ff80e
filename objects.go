package flatbridge

import (
	"context"
	"iter"
	"strings"
)

// DirPrefix returns prefix as a directory prefix: a non-empty prefix gains a
// trailing slash so that "trades" does not match "trades_old/...".
func DirPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// Objects returns a lazy listing of every object in the directory prefix.
// The prefix names whole path segments; see DirPrefix.
//
// Backends implementing ObjectLister stream their listing page by page.
// Other backends fall back to List, and the yielded ObjectInfo carries only
// the path (size -1).
func Objects(ctx context.Context, b Backend, prefix string) iter.Seq2[ObjectInfo, error] {
	prefix = DirPrefix(prefix)
	if l, ok := b.(ObjectLister); ok {
		return l.Objects(ctx, prefix)
	}
	return func(yield func(ObjectInfo, error) bool) {
		paths, err := b.List(ctx, prefix)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&BasicObjectInfo{ObjectPath: p, ObjectSize: -1}, nil) {
				return
			}
		}
	}
}
