package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeStake
	JournalTypePayout
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeStake:
		return "stake"
	case JournalTypePayout:
		return "payout"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   `json:"journal_id"`
	BatchID       uuid.UUID   `json:"batch_id"`
	EventRef      string      `json:"event_ref"`      // Idempotency key of source command
	Sequence      int64       `json:"sequence"`       // Commit sequence, stamped at commit
	DebitAccount  AccountKey  `json:"debit_account"`  // Account receiving debit (balance increases)
	CreditAccount AccountKey  `json:"credit_account"` // Account receiving credit (balance decreases)
	Amount        uint64      `json:"amount"`         // ALWAYS positive
	JournalType   JournalType `json:"journal_type"`
	Timestamp     int64       `json:"timestamp"` // Clock time of the operation (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID `json:"batch_id"`
	EventRef  string    `json:"event_ref"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
	Journals  []Journal `json:"journals"`
}

// NewBatch starts an empty batch for one operation.
func NewBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Timestamp: timestamp,
	}
}

// Add appends a transfer of amount from credit to debit.
func (b *Batch) Add(debit, credit AccountKey, amount uint64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// Stamp assigns the commit sequence to the batch and its journals.
func (b *Batch) Stamp(seq int64) {
	b.Sequence = seq
	for i := range b.Journals {
		b.Journals[i].Sequence = seq
	}
}

// Validate ensures the batch is well-formed.
// Each journal entry is a balanced transfer by construction (a single positive
// amount moves from credit account to debit account), so a batch of them is
// balanced whenever every entry is.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == 0 {
			return fmt.Errorf("journal %s has zero amount", j.JournalID)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		// Value only enters through deposits and leaves through withdrawals.
		if j.DebitAccount.IsExternal() && j.DebitAccount.SubType != SubTypeExternalWithdrawals {
			return fmt.Errorf("journal %s debits %s", j.JournalID, j.DebitAccount)
		}
		if j.CreditAccount.IsExternal() && j.CreditAccount.SubType != SubTypeExternalDeposits {
			return fmt.Errorf("journal %s credits %s", j.JournalID, j.CreditAccount)
		}
	}

	return nil
}
