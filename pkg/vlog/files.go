package vlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	walDirName = "wal"
	binDirName = "bin"

	walFileSuffix  = ".vlog"
	binFileSuffix  = ".bin"
	lockFileSuffix = ".lock"
)

func walFilePath(dir string, id uint64) string {
	return filepath.Join(dir, walDirName, fmt.Sprintf("%020d%s", id, walFileSuffix))
}

func binFilePath(dir string, id uint64) string {
	return filepath.Join(dir, binDirName, fmt.Sprintf("%020d%s", id, binFileSuffix))
}

func walLockPath(dir string, id uint64) string {
	return filepath.Join(dir, walDirName, fmt.Sprintf("%020d%s", id, lockFileSuffix))
}

// idGenerator hands out time-derived, strictly increasing file ids. Ids are
// opaque outside this package; only their ordering matters.
type idGenerator struct {
	last uint64
}

func (g *idGenerator) next() uint64 {
	id := uint64(time.Now().UnixNano())
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// seed moves the generator past an id observed on disk.
func (g *idGenerator) seed(id uint64) {
	if id > g.last {
		g.last = id
	}
}

// listFiles returns the ids of files with the given suffix under dir, in
// ascending order.
func listFiles(dir, suffix string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []uint64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			// Foreign file in the directory; leave it alone.
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
