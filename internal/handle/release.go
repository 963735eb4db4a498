package handle

import "io"

type closer interface{ Close() }

type disposer interface{ Dispose() }

type errDisposer interface{ Dispose() error }

// Disposable reports whether Release would do anything for v.
func Disposable(v any) bool {
	switch v.(type) {
	case io.Closer, closer, disposer, errDisposer:
		return true
	}
	return false
}

// Release frees the resources held by v through io.Closer, Close() or
// Dispose(). Other values are left alone.
func Release(v any) error {
	switch x := v.(type) {
	case io.Closer:
		return x.Close()
	case closer:
		x.Close()
	case errDisposer:
		return x.Dispose()
	case disposer:
		x.Dispose()
	}
	return nil
}
