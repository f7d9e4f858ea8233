//go:build sqlite_vec && cgo

package vecsearch

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Registers the sqlite-vec extension on every new SQLite connection.
// Built only under the sqlite_vec tag; the default build ranks vectors
// in Go and needs no native extension.
func init() {
	vec.Auto()
}
