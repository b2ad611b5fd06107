package persistence

import (
	"FluxLedger/internal/store"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CommitLogWriter writes commits, journals and the current-state tables to
// Postgres using multi-row INSERTs inside one transaction per batch.
type CommitLogWriter struct {
	db *sql.DB
}

// CommitRow represents a row in event_log.commits
type CommitRow struct {
	Sequence       int64
	Operation      string
	IdempotencyKey string
	Timestamp      int64
	Payload        []byte // JSON-encoded store.Commit
	StateHash      []byte
	PrevHash       []byte
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        uint64
	JournalType   int32
	Timestamp     int64
}

// RecordRow represents a row in ledger.records
type RecordRow struct {
	Address  string
	Kind     string
	Version  int64
	Data     []byte
	Sequence int64
}

// BalanceRow represents a row in ledger.balances
type BalanceRow struct {
	AccountPath string
	Balance     uint64
	Sequence    int64
}

// CommitOutput is everything one commit writes.
type CommitOutput struct {
	Commit   CommitRow
	Journals []JournalRow
	Records  []RecordRow
	Balances []BalanceRow
}

// NewCommitOutput flattens a commit into table rows.
func NewCommitOutput(c *store.Commit) (CommitOutput, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("marshal commit %d: %w", c.Sequence, err)
	}

	out := CommitOutput{
		Commit: CommitRow{
			Sequence:       c.Sequence,
			Operation:      c.Operation,
			IdempotencyKey: c.IdempotencyKey,
			Timestamp:      c.Timestamp,
			Payload:        payload,
			StateHash:      append([]byte(nil), c.StateHash[:]...),
			PrevHash:       append([]byte(nil), c.PrevHash[:]...),
		},
	}

	if c.Batch != nil {
		for _, j := range c.Batch.Journals {
			out.Journals = append(out.Journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      c.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				Timestamp:     j.Timestamp,
			})
		}
	}

	for _, r := range c.Records {
		out.Records = append(out.Records, RecordRow{
			Address:  r.Address.String(),
			Kind:     r.Kind.String(),
			Version:  r.Version,
			Data:     r.Data,
			Sequence: c.Sequence,
		})
	}

	for key, bal := range c.Balances {
		out.Balances = append(out.Balances, BalanceRow{
			AccountPath: key.AccountPath(),
			Balance:     bal,
			Sequence:    c.Sequence,
		})
	}
	sort.Slice(out.Balances, func(i, j int) bool {
		return out.Balances[i].AccountPath < out.Balances[j].AccountPath
	})

	return out, nil
}

func NewCommitLogWriter(db *sql.DB) *CommitLogWriter {
	return &CommitLogWriter{db: db}
}

// WriteBatch writes a batch of commit outputs in one transaction.
func (w *CommitLogWriter) WriteBatch(ctx context.Context, batch []CommitOutput) error {
	if len(batch) == 0 {
		return nil
	}

	commits := make([]CommitRow, 0, len(batch))
	var journals []JournalRow
	var records []RecordRow
	var balances []BalanceRow
	for _, out := range batch {
		commits = append(commits, out.Commit)
		journals = append(journals, out.Journals...)
		records = append(records, out.Records...)
		balances = append(balances, out.Balances...)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeCommits(ctx, tx, commits); err != nil {
		return fmt.Errorf("write commits: %w", err)
	}
	if err := writeJournals(ctx, tx, journals); err != nil {
		return fmt.Errorf("write journals: %w", err)
	}
	if err := upsertRecords(ctx, tx, LatestRecords(records)); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	if err := upsertBalances(ctx, tx, LatestBalances(balances)); err != nil {
		return fmt.Errorf("upsert balances: %w", err)
	}

	return tx.Commit()
}

// LatestRecords keeps the highest version of each address. One INSERT ... ON
// CONFLICT DO UPDATE cannot touch the same row twice.
func LatestRecords(rows []RecordRow) []RecordRow {
	idx := make(map[string]int, len(rows))
	out := make([]RecordRow, 0, len(rows))
	for _, r := range rows {
		if i, ok := idx[r.Address]; ok {
			if r.Version > out[i].Version {
				out[i] = r
			}
			continue
		}
		idx[r.Address] = len(out)
		out = append(out, r)
	}
	return out
}

// LatestBalances keeps the highest-sequence balance of each account.
func LatestBalances(rows []BalanceRow) []BalanceRow {
	idx := make(map[string]int, len(rows))
	out := make([]BalanceRow, 0, len(rows))
	for _, b := range rows {
		if i, ok := idx[b.AccountPath]; ok {
			if b.Sequence >= out[i].Sequence {
				out[i] = b
			}
			continue
		}
		idx[b.AccountPath] = len(out)
		out = append(out, b)
	}
	return out
}

func writeCommits(ctx context.Context, tx *sql.Tx, rows []CommitRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.commits
		(sequence, operation, idempotency_key, op_timestamp, payload, state_hash, prev_hash)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)
	for i, c := range rows {
		values = append(values, placeholders(i*7, 7))
		args = append(args,
			c.Sequence, c.Operation, c.IdempotencyKey, c.Timestamp,
			string(c.Payload), c.StateHash, c.PrevHash,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func writeJournals(ctx context.Context, tx *sql.Tx, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, op_timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)
	for i, j := range rows {
		values = append(values, placeholders(i*9, 9))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, strconv.FormatUint(j.Amount, 10),
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertRecords(ctx context.Context, tx *sql.Tx, rows []RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.records (address, kind, version, data, sequence) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)
	for i, r := range rows {
		values = append(values, placeholders(i*5, 5))
		args = append(args, r.Address, r.Kind, r.Version, string(r.Data), r.Sequence)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (address) DO UPDATE SET
		kind = EXCLUDED.kind, version = EXCLUDED.version,
		data = EXCLUDED.data, sequence = EXCLUDED.sequence
		WHERE ledger.records.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func upsertBalances(ctx context.Context, tx *sql.Tx, rows []BalanceRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.balances (account_path, balance, sequence) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*3)
	for i, b := range rows {
		values = append(values, placeholders(i*3, 3))
		args = append(args, b.AccountPath, strconv.FormatUint(b.Balance, 10), b.Sequence)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (account_path) DO UPDATE SET
		balance = EXCLUDED.balance, sequence = EXCLUDED.sequence
		WHERE ledger.balances.sequence < EXCLUDED.sequence`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			sb.WriteString(", ")
		}
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(base + i))
	}
	sb.WriteByte(')')
	return sb.String()
}
