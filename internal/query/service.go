// Package query reads the persisted ledger for audits. It never touches the
// engine's in-memory state.
package query

import (
	"FluxLedger/internal/ledger"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the commit log and the
// current-state tables. Responses carry as_of_sequence for freshness.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's custody balance.
func (qs *QueryService) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceResponse, error) {
	path := ledger.NewUserAccountKey(userID).AccountPath()
	resp := &BalanceResponse{UserID: userID.String(), AccountPath: path}

	var (
		balance string
		seq     sql.NullInt64
	)
	err := qs.db.QueryRowContext(ctx, `
		SELECT b.balance::text, (SELECT MAX(sequence) FROM event_log.commits)
		FROM ledger.balances b
		WHERE b.account_path = $1
	`, path).Scan(&balance, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		resp.AsOfSequence, err = qs.latestSequence(ctx)
		return resp, err
	}
	if err != nil {
		return nil, err
	}

	if resp.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
		return nil, fmt.Errorf("balance of %s: %w", path, err)
	}
	resp.AsOfSequence = seq.Int64
	return resp, nil
}

// GetJournalHistory returns journal entries touching a user's custody
// account, newest first. afterSequence pages backwards.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	account := ledger.NewUserAccountKey(userID).AccountPath()

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount::text, journal_type, op_timestamp
		FROM event_log.journal
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []interface{}{account}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var (
			e      JournalHistoryEntry
			amount string
		)
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if e.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("journal %s: %w", e.JournalID, err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks the persisted ledger: hash chain continuity,
// sequence gaps, stored balances against the journal, and custody
// conservation (holdings equal deposits minus withdrawals).
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	var err error

	if report.HashChainBreaks, err = qs.int64s(ctx, `
		SELECT c1.sequence
		FROM event_log.commits c1
		JOIN event_log.commits c2 ON c2.sequence = c1.sequence - 1
		WHERE c1.prev_hash <> c2.state_hash
		ORDER BY c1.sequence
		LIMIT 10
	`); err != nil {
		return nil, fmt.Errorf("hash chain: %w", err)
	}

	if report.SequenceGaps, err = qs.int64s(ctx, `
		SELECT c1.sequence + 1
		FROM event_log.commits c1
		LEFT JOIN event_log.commits c2 ON c2.sequence = c1.sequence + 1
		WHERE c2.sequence IS NULL
		  AND c1.sequence < (SELECT MAX(sequence) FROM event_log.commits)
		ORDER BY c1.sequence
		LIMIT 10
	`); err != nil {
		return nil, fmt.Errorf("sequence gaps: %w", err)
	}

	if report.BalanceDrift, err = qs.balanceDrift(ctx); err != nil {
		return nil, fmt.Errorf("balance drift: %w", err)
	}

	if report.Conservation, err = qs.conservation(ctx); err != nil {
		return nil, fmt.Errorf("conservation: %w", err)
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		len(report.SequenceGaps) == 0 &&
		len(report.BalanceDrift) == 0 &&
		report.Conservation == nil
	return report, nil
}

// balanceDrift compares every custody account's stored balance with the
// net of its journal (debits increase, credits decrease). External
// accounts accumulate boundary flow and are checked the same way.
func (qs *QueryService) balanceDrift(ctx context.Context) ([]AccountDrift, error) {
	rows, err := qs.db.QueryContext(ctx, `
		WITH flows AS (
			SELECT debit_account AS account_path, amount FROM event_log.journal
			UNION ALL
			SELECT credit_account, -amount FROM event_log.journal
		), net AS (
			SELECT account_path, SUM(amount) AS total FROM flows GROUP BY account_path
		)
		SELECT COALESCE(b.account_path, n.account_path),
		       COALESCE(b.balance, 0)::text,
		       COALESCE(n.total, 0)::text
		FROM ledger.balances b
		FULL OUTER JOIN net n ON n.account_path = b.account_path
		WHERE COALESCE(b.balance, 0) <> COALESCE(n.total, 0)
		  AND COALESCE(b.account_path, n.account_path) NOT LIKE 'external:%'
		ORDER BY 1
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountDrift
	for rows.Next() {
		var d AccountDrift
		if err := rows.Scan(&d.AccountPath, &d.Stored, &d.Journaled); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (qs *QueryService) conservation(ctx context.Context) (*ConservationGap, error) {
	var holdings, deposits, withdrawals string
	err := qs.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(balance) FILTER (WHERE account_path NOT LIKE 'external:%'), 0)::text,
			COALESCE(SUM(balance) FILTER (WHERE account_path = $1), 0)::text,
			COALESCE(SUM(balance) FILTER (WHERE account_path = $2), 0)::text
		FROM ledger.balances
	`,
		ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits).AccountPath(),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals).AccountPath(),
	).Scan(&holdings, &deposits, &withdrawals)
	if err != nil {
		return nil, err
	}

	h, err := strconv.ParseUint(holdings, 10, 64)
	if err != nil {
		return nil, err
	}
	d, err := strconv.ParseUint(deposits, 10, 64)
	if err != nil {
		return nil, err
	}
	w, err := strconv.ParseUint(withdrawals, 10, 64)
	if err != nil {
		return nil, err
	}
	if w <= d && h == d-w {
		return nil, nil
	}
	return &ConservationGap{Holdings: holdings, Deposits: deposits, Withdrawals: withdrawals}, nil
}

func (qs *QueryService) latestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.commits`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func (qs *QueryService) int64s(ctx context.Context, query string) ([]int64, error) {
	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
