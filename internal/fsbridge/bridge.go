// Package fsbridge adapts the native fs.Filesystem abstraction to the
// billy.Filesystem interface go-git operates on, and builds go-git storage
// with an LRU object cache.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
)

// minCacheSize is used when a non-positive cache size is requested.
const minCacheSize = 100

// ToBillyFilesystem converts an fs.Filesystem to a billy.Filesystem.
// The passed filesystem must be a billy-backed wrapper from the fs/billy
// package; anything else is rejected.
//
//nolint:ireturn // returns interface as required by billy.Filesystem interface
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	wrapped, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be a billy.FS from fs/billy package, got %T", fsys)
	}

	return wrapped.Raw(), nil
}

// NewStorage creates go-git storage over the given filesystem with an LRU
// object cache of the requested size. Frequently accessed objects stay in
// memory, which matters for the repeated tree walks the sync pipeline does.
func NewStorage(billyFS billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = minCacheSize
	}

	objCache := cache.NewObjectLRU(cache.FileSize(cacheSize))
	return filesystem.NewStorage(billyFS, objCache)
}
