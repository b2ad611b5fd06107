package query

// BalanceResponse is a custody balance as of the last persisted commit.
type BalanceResponse struct {
	UserID       string `json:"user_id"`
	AccountPath  string `json:"account_path"`
	Balance      uint64 `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for audit queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        uint64 `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool             `json:"is_healthy"`
	HashChainBreaks []int64          `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64          `json:"sequence_gaps,omitempty"`
	BalanceDrift    []AccountDrift   `json:"balance_drift,omitempty"`
	Conservation    *ConservationGap `json:"conservation,omitempty"`
}

// AccountDrift is an account whose stored balance disagrees with its journal.
type AccountDrift struct {
	AccountPath string `json:"account_path"`
	Stored      string `json:"stored"`
	Journaled   string `json:"journaled"`
}

// ConservationGap reports holdings that do not match net boundary flow.
type ConservationGap struct {
	Holdings    string `json:"holdings"`
	Deposits    string `json:"deposits"`
	Withdrawals string `json:"withdrawals"`
}
