package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"theralink-server/internal/adherence"
	"theralink-server/internal/models"
)

// Key layout:
//
//	meta/seq              -> last sequence number
//	dose/<patient>/<seq>  -> JSON encoded entry
const (
	seqKey     = "meta/seq"
	dosePrefix = "dose/"
)

type ledgerEntry struct {
	ID         string               `json:"id"`
	Seq        uint64               `json:"seq"`
	PatientID  string               `json:"patient_id"`
	Medication string               `json:"medication"`
	Status     adherence.DoseStatus `json:"status"`
	RecordedAt time.Time            `json:"recorded_at"`
	DoseDate   string               `json:"dose_date"`
	CreatedAt  time.Time            `json:"created_at"`
}

// LevelDBLedger keeps the dose ledger in an embedded LevelDB database.
type LevelDBLedger struct {
	db  *leveldb.DB
	mu  sync.Mutex
	seq uint64
}

// OpenLevelDBLedger opens (or creates) a ledger at path.
func OpenLevelDBLedger(path string) (*LevelDBLedger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb ledger at %s: %w", path, err)
	}
	return NewLevelDBLedger(db)
}

// NewLevelDBLedger wraps an already opened database.
func NewLevelDBLedger(db *leveldb.DB) (*LevelDBLedger, error) {
	l := &LevelDBLedger{db: db}
	raw, err := db.Get([]byte(seqKey), nil)
	switch {
	case err == leveldb.ErrNotFound:
	case err != nil:
		return nil, fmt.Errorf("read ledger sequence: %w", err)
	default:
		l.seq, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger sequence %q: %w", raw, err)
		}
	}
	return l, nil
}

// Close closes the underlying database.
func (l *LevelDBLedger) Close() error {
	return l.db.Close()
}

func doseKey(patientID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", dosePrefix, patientID, seq))
}

func patientPrefix(patientID string) []byte {
	return []byte(dosePrefix + patientID + "/")
}

// Append writes the entry and the advanced sequence number in one synced
// batch, so either both land or neither does.
func (l *LevelDBLedger) Append(ctx context.Context, d *models.DoseLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp(&d.BaseModel)
	next := l.seq + 1
	val, err := json.Marshal(ledgerEntry{
		ID:         d.ID,
		Seq:        next,
		PatientID:  d.PatientID,
		Medication: d.Medication,
		Status:     d.Status,
		RecordedAt: d.RecordedAt,
		DoseDate:   adherence.FormatDate(d.DoseDate),
		CreatedAt:  d.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(doseKey(d.PatientID, next), val)
	batch.Put([]byte(seqKey), []byte(strconv.FormatUint(next, 10)))
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("append dose log: %w", err)
	}
	l.seq = next
	d.Seq = next
	return nil
}

func (l *LevelDBLedger) EventsForPatient(ctx context.Context, patientID string) ([]models.DoseLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := l.db.NewIterator(util.BytesPrefix(patientPrefix(patientID)), nil)
	defer iter.Release()

	var logs []models.DoseLog
	for iter.Next() {
		var e ledgerEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", iter.Key(), err)
		}
		date, err := adherence.ParseDate(e.DoseDate)
		if err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", iter.Key(), err)
		}
		logs = append(logs, models.DoseLog{
			BaseModel:  models.BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.CreatedAt},
			Seq:        e.Seq,
			PatientID:  e.PatientID,
			Medication: e.Medication,
			Status:     e.Status,
			RecordedAt: e.RecordedAt,
			DoseDate:   date,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan ledger for %s: %w", patientID, err)
	}
	sortLogs(logs)
	return logs, nil
}

func (l *LevelDBLedger) EventsFor(ctx context.Context, patientID, medication string) ([]models.DoseLog, error) {
	logs, err := l.EventsForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	key := adherence.MedicationKey(medication)
	out := logs[:0]
	for _, d := range logs {
		if adherence.MedicationKey(d.Medication) == key {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *LevelDBLedger) StatusOn(ctx context.Context, patientID, medication string, date time.Time) (adherence.DoseStatus, bool, error) {
	logs, err := l.EventsFor(ctx, patientID, medication)
	if err != nil {
		return "", false, err
	}
	st, ok := adherence.LatestStatus(models.Events(logs), patientID, medication, date)
	return st, ok, nil
}

// Ping reads the sequence key to confirm the database is usable.
func (l *LevelDBLedger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.db.Get([]byte(seqKey), nil)
	if err != nil && err != leveldb.ErrNotFound {
		return err
	}
	return nil
}

// sortLogs orders entries by recording time, keeping append order for
// equal timestamps.
func sortLogs(logs []models.DoseLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].RecordedAt.Before(logs[j].RecordedAt)
	})
}
