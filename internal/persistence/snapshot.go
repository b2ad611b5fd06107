package persistence

import (
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/state"
	"FluxLedger/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SnapshotLoader rebuilds a store snapshot from the current-state tables.
// The worker writes commits, records and balances in one transaction per
// batch, so the tables always reflect a whole number of commits.
type SnapshotLoader struct {
	db *sql.DB
}

func NewSnapshotLoader(db *sql.DB) *SnapshotLoader {
	return &SnapshotLoader{db: db}
}

// Load reads the latest persisted state. An empty database yields the
// genesis snapshot (sequence 0).
func (sl *SnapshotLoader) Load(ctx context.Context) (store.Snapshot, error) {
	tx, err := sl.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap := store.Snapshot{Balances: make(map[ledger.AccountKey]uint64)}

	seq, tip, err := latestCommit(ctx, tx)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Sequence = seq
	snap.Tip = tip

	if snap.Records, err = loadRecords(ctx, tx); err != nil {
		return store.Snapshot{}, err
	}
	if err := loadBalances(ctx, tx, snap.Balances); err != nil {
		return store.Snapshot{}, err
	}

	return snap, tx.Commit()
}

// GetLatestSequence returns the highest sequence in the commit log.
func (sl *SnapshotLoader) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sl.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.commits`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func latestCommit(ctx context.Context, tx *sql.Tx) (int64, [32]byte, error) {
	var (
		seq  int64
		hash []byte
		tip  [32]byte
	)
	err := tx.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM event_log.commits
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tip, nil
	}
	if err != nil {
		return 0, tip, fmt.Errorf("load chain tip: %w", err)
	}
	if len(hash) != len(tip) {
		return 0, tip, fmt.Errorf("commit %d: state hash is %d bytes", seq, len(hash))
	}
	copy(tip[:], hash)
	return seq, tip, nil
}

func loadRecords(ctx context.Context, tx *sql.Tx) ([]store.RecordWrite, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT address, kind, version, data FROM ledger.records ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var out []store.RecordWrite
	for rows.Next() {
		var (
			addr, kind string
			version    int64
			data       []byte
		)
		if err := rows.Scan(&addr, &kind, &version, &data); err != nil {
			return nil, err
		}
		a, err := ledger.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		k, err := state.ParseRecordKind(kind)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", addr, err)
		}
		out = append(out, store.RecordWrite{Address: a, Kind: k, Version: version, Data: data})
	}
	return out, rows.Err()
}

func loadBalances(ctx context.Context, tx *sql.Tx, into map[ledger.AccountKey]uint64) error {
	rows, err := tx.QueryContext(ctx, `SELECT account_path, balance::text FROM ledger.balances`)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, balance string
		if err := rows.Scan(&path, &balance); err != nil {
			return err
		}
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(balance, 10, 64)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", path, err)
		}
		into[key] = v
	}
	return rows.Err()
}
