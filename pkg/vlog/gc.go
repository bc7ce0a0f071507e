package vlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/segmentio/ksuid"

	"github.com/valyx/valog/pkg/codec"
)

// GCResult summarizes one GC round.
type GCResult struct {
	Round          string   `json:"round"`
	Files          []uint64 `json:"files"`
	SkippedBusy    []uint64 `json:"skipped_busy"`
	ScannedBytes   int64    `json:"scanned_bytes"`
	ReclaimedBytes int64    `json:"reclaimed_bytes"`
	LiveRecords    int      `json:"live_records"`
	DeadRecords    int      `json:"dead_records"`
}

// ReclaimRatio is the fraction of scanned bytes the round reclaimed.
func (r *GCResult) ReclaimRatio() float64 {
	if r.ScannedBytes == 0 {
		return 0
	}
	return float64(r.ReclaimedBytes) / float64(r.ScannedBytes)
}

// GCMerge reclaims space from the given sealed wal files. Live entries are
// re-appended through the ordinary write pipeline, the resulting position
// mappings are applied to the external index in one batch, and only after
// that call succeeds are the source files deleted. Re-running the same
// round after a failure is safe: the sources are untouched until the index
// accepted the new positions.
func (e *Engine) GCMerge(ctx context.Context, fileIDs []uint64, live Liveness, update IndexUpdate) (*GCResult, error) {
	res := &GCResult{Round: ksuid.New().String()}

	type target struct {
		id   uint64
		lock *flock.Flock
	}
	var targets []target
	unlockAll := func() {
		for _, t := range targets {
			_ = t.lock.Unlock()
			_ = os.Remove(walLockPath(e.dir, t.id))
		}
	}

	activeID := e.activeFileID()
	for _, id := range fileIDs {
		if id == activeID {
			e.logger.Printf("valog: gc %s: skipping active file %d", res.Round, id)
			continue
		}
		lock := flock.New(walLockPath(e.dir, id))
		held, err := lock.TryLock()
		if err != nil {
			unlockAll()
			return nil, fmt.Errorf("valog: gc lock %d: %w", id, err)
		}
		if !held {
			// Another process owns this file's GC; not fatal for the round.
			res.SkippedBusy = append(res.SkippedBusy, id)
			e.metrics.gcSkippedLocked.Inc()
			e.logger.Printf("valog: gc %s: file %d locked, skipping: %v", res.Round, id, ErrLockBusy)
			continue
		}
		targets = append(targets, target{id: id, lock: lock})
	}

	var mappings []PositionMapping
	var scannedPositions []codec.Position
	for _, t := range targets {
		it, err := e.newRecordIter(t.id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Already collected by an earlier round; retries stay
				// idempotent.
				e.logger.Printf("valog: gc %s: file %d already gone", res.Round, t.id)
				continue
			}
			unlockAll()
			return nil, err
		}
		for it.next() {
			recLen := codec.RecordLen(it.head)
			res.ScannedBytes += recLen
			scannedPositions = append(scannedPositions, it.pos)

			key, err := e.resolveKeyLocked(it.pos, it.head)
			if err != nil {
				if errors.Is(err, ErrCorrupt) {
					// Nothing to resurrect; the space is reclaimed.
					e.logger.Printf("valog: gc %s: unreadable key at %s, reclaiming: %v", res.Round, it.pos, err)
					res.ReclaimedBytes += recLen
					res.DeadRecords++
					continue
				}
				unlockAll()
				return nil, err
			}

			alive := false
			if !it.head.IsTombstone() {
				// Reclaimable only when the whole fork family is dead.
				// These calls may suspend; the writer is not blocked.
				alive, err = e.forks.anyLive(ctx, e.cfg.DatabaseID, key, live)
				if err != nil {
					unlockAll()
					return nil, fmt.Errorf("valog: gc liveness: %w", err)
				}
			}
			if !alive {
				res.ReclaimedBytes += recLen
				res.DeadRecords++
				continue
			}

			val, err := e.resolveValueLocked(it.pos, it.head)
			if err != nil {
				if errors.Is(err, ErrCorrupt) {
					e.logger.Printf("valog: gc %s: corrupt live value at %s lost: %v", res.Round, it.pos, err)
					res.ReclaimedBytes += recLen
					res.DeadRecords++
					continue
				}
				unlockAll()
				return nil, err
			}

			newPos, err := e.Put(key, val)
			if err != nil {
				unlockAll()
				return nil, err
			}
			mappings = append(mappings, PositionMapping{Key: key, Old: it.pos, New: newPos})
			res.LiveRecords++
		}
		if it.err != nil {
			unlockAll()
			return nil, it.err
		}
		res.Files = append(res.Files, t.id)
	}

	// Survivors must be durable before the index switches to their new
	// positions.
	if err := e.Sync(); err != nil {
		unlockAll()
		return nil, err
	}

	if update != nil {
		if err := update.Apply(ctx, mappings); err != nil {
			unlockAll()
			return nil, fmt.Errorf("valog: gc index update: %w", err)
		}
	}

	for _, t := range targets {
		path := walFilePath(e.dir, t.id)
		e.files.drop(path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			unlockAll()
			return nil, err
		}
		e.dropSealed(t.id)
	}
	for _, pos := range scannedPositions {
		e.headCache.Remove(pos)
		e.dataCache.Remove(pos)
	}
	unlockAll()

	e.metrics.gcRoundsTotal.Inc()
	e.metrics.gcReclaimedBytes.Add(float64(res.ReclaimedBytes))
	e.logger.Printf("valog: gc %s: %d files, %d live re-appended, %d reclaimed bytes",
		res.Round, len(res.Files), res.LiveRecords, res.ReclaimedBytes)
	return res, nil
}

// GCAuto runs the opportunistic schedule: repeatedly pick the
// least-recently-collected file among the oldest quartile of sealed files
// and collect it, continuing only while rounds keep reclaiming more than
// the configured ratio, up to GCMaxRounds rounds.
func (e *Engine) GCAuto(ctx context.Context, live Liveness, update IndexUpdate) ([]*GCResult, error) {
	var results []*GCResult
	for round := 0; round < e.cfg.GCMaxRounds; round++ {
		target, ok := e.pickGCTarget()
		if !ok {
			break
		}
		res, err := e.GCMerge(ctx, []uint64{target}, live, update)
		if err != nil {
			return results, err
		}
		e.markGC(target)
		results = append(results, res)
		if len(res.Files) == 0 || res.ReclaimRatio() <= e.cfg.GCReclaimThreshold {
			break
		}
	}
	return results, nil
}

// pickGCTarget chooses the least-recently-collected file among the oldest
// quartile of sealed files.
func (e *Engine) pickGCTarget() (uint64, bool) {
	sealed := e.sealedSnapshot()
	if len(sealed) == 0 {
		return 0, false
	}
	quartile := sealed[:max(1, len(sealed)/4)]

	e.mu.Lock()
	defer e.mu.Unlock()
	best := quartile[0]
	bestAt := e.lastGC[best]
	for _, id := range quartile[1:] {
		if at := e.lastGC[id]; at.Before(bestAt) {
			best, bestAt = id, at
		}
	}
	return best, true
}

func (e *Engine) markGC(fileID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastGC[fileID] = time.Now()
}

func (e *Engine) activeFileID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipe.fileID
}
