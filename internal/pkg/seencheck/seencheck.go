// Package seencheck keeps a persistent set of image IDs already handled
// by earlier runs, so the pipeline can drop duplicates before spending a
// session on them.
package seencheck

import (
	"path"
	"strconv"
	"sync/atomic"

	"github.com/philippgille/gokv/leveldb"
	"github.com/zeebo/xxh3"
)

// Seencheck holds the Seencheck database and the seen counter
type Seencheck struct {
	Count *int64
	DB    leveldb.Store
}

var globalSeencheck *Seencheck

func Start(jobPath string) (err error) {
	count := int64(0)
	globalSeencheck = new(Seencheck)
	globalSeencheck.Count = &count
	globalSeencheck.DB, err = leveldb.NewStore(leveldb.Options{Path: path.Join(jobPath, "seencheck")})
	return err
}

func Close() {
	if globalSeencheck != nil {
		globalSeencheck.DB.Close()
	}
}

func isSeen(hash string) (found bool, value string) {
	found, err := globalSeencheck.DB.Get(hash, &value)
	if err != nil {
		panic(err)
	}

	return found, value
}

func seen(hash, value string) {
	globalSeencheck.DB.Set(hash, value)
	atomic.AddInt64(globalSeencheck.Count, 1)
}

func key(imageID string) string {
	return strconv.FormatUint(xxh3.HashString(imageID), 10)
}

// IsSeen reports whether the given image ID was recorded by a previous run.
func IsSeen(imageID string) bool {
	found, _ := isSeen(key(imageID))
	return found
}

// MarkSeen records an image ID with its digest once its file is safely on disk.
func MarkSeen(imageID, digest string) {
	seen(key(imageID), digest)
}

// SeenCount returns the number of image IDs recorded since Start.
func SeenCount() int64 {
	return atomic.LoadInt64(globalSeencheck.Count)
}
