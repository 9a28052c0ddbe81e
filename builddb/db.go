// Package builddb provides the driver's run-history ledger: one record per
// invocation (start time, end time, job totals) plus one record per job that
// ran within it. It is purely observational — nothing here feeds the
// staleness decision in pkg, which is driven entirely by mtimes.
package builddb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for bbolt database.
const (
	BucketRuns = "runs"
	BucketJobs = "jobs"
)

// DB wraps a bbolt database for the run-history ledger.
type DB struct {
	db   *bolt.DB
	path string
}

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RunStats aggregates per-run job outcomes.
type RunStats struct {
	NumTotal    int `json:"numtotal"`
	NumFinished int `json:"numfinished"`
	NumFailed   int `json:"numfailed"`
}

// RunRecord captures metadata for one driver invocation.
type RunRecord struct {
	ID        string    `json:"id"`
	DistDir   string    `json:"distdir"`
	Targets   []string  `json:"targets"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Stats     RunStats  `json:"stats"`
}

// JobRecord is one completed Dependency Extractor or Build Runner job within
// a run, keyed by (run ID, builder dir suffix, package name, job kind).
type JobRecord struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Builder   string    `json:"builder"`
	Kind      string    `json:"kind"` // "extract" | "build"
	Success   bool      `json:"success"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// OpenDB opens or creates a bbolt database at path, initializing the runs
// and jobs buckets if they don't already exist. Opened with 0600 permissions.
func OpenDB(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketRuns, Err: err}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketJobs)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketJobs, Err: err}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{db: bdb, path: path}, nil
}

// Close closes the database. Safe to call on a nil-backed DB.
func (db *DB) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

// StartRun writes a new run record with status "running".
func (db *DB) StartRun(runID, distDir string, targets []string, start time.Time) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	rec := &RunRecord{
		ID:        runID,
		DistDir:   distDir,
		Targets:   targets,
		StartTime: start,
		Status:    RunStatusRunning,
	}
	return db.saveRun(rec)
}

// FinishRun updates an existing run record with final stats and status.
func (db *DB) FinishRun(runID string, stats RunStats, end time.Time, success bool) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	status := RunStatusSuccess
	if !success {
		status = RunStatusFailed
	}
	return db.updateRun(runID, func(rec *RunRecord) {
		rec.EndTime = end
		rec.Stats = stats
		rec.Status = status
	})
}

// GetRun fetches a run record by ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	var rec RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}
		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "get run", UUID: runID, Err: ErrRecordNotFound}
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns every run record, most recently started first.
func (db *DB) ListRuns() ([]RunRecord, error) {
	var runs []RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			runs = append(runs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs, nil
}

// PutJob records one completed job (extractor or builder) within a run.
func (db *DB) PutJob(rec *JobRecord) error {
	if rec.RunID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	key := jobKey(rec.RunID, rec.Builder, rec.Name, rec.Kind)
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal job", UUID: rec.RunID, Err: err}
	}
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketJobs))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketJobs, Err: ErrBucketNotFound}
		}
		return bucket.Put(key, data)
	})
}

// ListJobs returns every job record for a run.
func (db *DB) ListJobs(runID string) ([]JobRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	prefix := jobPrefix(runID)
	var records []JobRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketJobs))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketJobs, Err: ErrBucketNotFound}
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func jobKey(runID, builder, name, kind string) []byte {
	return append(jobPrefix(runID), []byte(fmt.Sprintf("%s/%s@%s", builder, name, kind))...)
}

func jobPrefix(runID string) []byte {
	return []byte(runID + "\x00")
}

func (db *DB) saveRun(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal run", UUID: rec.ID, Err: err}
	}
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

func (db *DB) updateRun(runID string, mutate func(*RunRecord)) error {
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}
		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "update run", UUID: runID, Err: ErrRecordNotFound}
		}
		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal run", UUID: runID, Err: err}
		}
		mutate(&rec)
		updated, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal run", UUID: runID, Err: err}
		}
		return bucket.Put([]byte(runID), updated)
	})
}
