package persistence_test

import (
	"FluxLedger/internal/core"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/persistence"
	"FluxLedger/internal/store"
	"context"
	"testing"

	"github.com/google/uuid"
)

// ledgerHistory drives a small engine and returns every commit it made.
func ledgerHistory(t *testing.T) (*core.Engine, []*store.Commit, uuid.UUID) {
	t.Helper()
	e := core.NewEngine(core.Config{
		SigningKey: []byte("persistence-test-key"),
		Clock:      core.NewManualClock(1_700_000_000),
	})
	user := uuid.New()

	cmds := []core.Command{
		&core.InitializePlatform{RequestID: "init", Admin: uuid.New(), FeeBps: 500},
		&core.Deposit{RequestID: "dep-1", User: user, Amount: 1_000},
		&core.Deposit{RequestID: "dep-2", User: user, Amount: 500},
		&core.Withdraw{RequestID: "wd-1", User: user, Amount: 200},
	}

	var commits []*store.Commit
	for _, cmd := range cmds {
		c, err := e.Dispatch(context.Background(), cmd)
		if err != nil {
			t.Fatalf("%s: %v", cmd.Operation(), err)
		}
		commits = append(commits, c)
	}
	return e, commits, user
}

func TestNewCommitOutput(t *testing.T) {
	_, commits, user := ledgerHistory(t)
	dep := commits[1]

	out, err := persistence.NewCommitOutput(dep)
	if err != nil {
		t.Fatalf("output: %v", err)
	}

	if out.Commit.Sequence != dep.Sequence || out.Commit.IdempotencyKey != "dep-1" {
		t.Errorf("commit row: %+v", out.Commit)
	}
	if len(out.Commit.StateHash) != 32 || len(out.Commit.PrevHash) != 32 {
		t.Errorf("hash lengths: %d/%d", len(out.Commit.StateHash), len(out.Commit.PrevHash))
	}
	if string(out.Commit.PrevHash) != string(commits[0].StateHash[:]) {
		t.Error("prev hash should chain to the previous commit")
	}

	if len(out.Journals) != 1 {
		t.Fatalf("journals: got %d, want 1", len(out.Journals))
	}
	j := out.Journals[0]
	if j.DebitAccount != ledger.NewUserAccountKey(user).AccountPath() || j.Amount != 1_000 {
		t.Errorf("journal row: %+v", j)
	}
	if j.Sequence != dep.Sequence {
		t.Errorf("journal sequence: got %d, want %d", j.Sequence, dep.Sequence)
	}

	if len(out.Balances) != 2 {
		t.Fatalf("balances: got %d, want 2", len(out.Balances))
	}
	for i := 1; i < len(out.Balances); i++ {
		if out.Balances[i-1].AccountPath >= out.Balances[i].AccountPath {
			t.Error("balance rows should be sorted by account path")
		}
	}
}

func TestNewCommitOutput_RecordsCarryCommitSequence(t *testing.T) {
	_, commits, _ := ledgerHistory(t)
	initCommit := commits[0]

	out, err := persistence.NewCommitOutput(initCommit)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if len(out.Records) == 0 {
		t.Fatal("initialize should write the platform record")
	}
	for _, r := range out.Records {
		if r.Sequence != initCommit.Sequence || r.Version < 1 || len(r.Data) == 0 {
			t.Errorf("record row: %+v", r)
		}
	}
	if len(out.Journals) != 0 {
		t.Errorf("initialize moves no funds, got %d journals", len(out.Journals))
	}
}

func TestLatestRecords_KeepsHighestVersion(t *testing.T) {
	rows := []persistence.RecordRow{
		{Address: "a", Version: 1, Sequence: 1},
		{Address: "b", Version: 1, Sequence: 1},
		{Address: "a", Version: 3, Sequence: 3},
		{Address: "a", Version: 2, Sequence: 2},
	}

	got := persistence.LatestRecords(rows)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Address != "a" || got[0].Version != 3 {
		t.Errorf("a: got %+v, want version 3", got[0])
	}
	if got[1].Address != "b" {
		t.Errorf("order: got %s second, want b", got[1].Address)
	}
}

func TestLatestBalances_KeepsHighestSequence(t *testing.T) {
	rows := []persistence.BalanceRow{
		{AccountPath: "user:x:custody", Balance: 10, Sequence: 4},
		{AccountPath: "user:x:custody", Balance: 7, Sequence: 6},
		{AccountPath: "system:treasury:treasury", Balance: 3, Sequence: 6},
	}

	got := persistence.LatestBalances(rows)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Balance != 7 {
		t.Errorf("balance: got %d, want 7", got[0].Balance)
	}
}
