package ingestion_test

import (
	"FluxLedger/internal/event"
	"FluxLedger/internal/ingestion"
	"FluxLedger/internal/store"
	"encoding/hex"
	"testing"
)

func TestEnvelopes_StampCommitPosition(t *testing.T) {
	c := &store.Commit{
		Sequence:       7,
		Operation:      "deposit",
		IdempotencyKey: "dep-7",
		Timestamp:      1_700_000_000,
		StateHash:      [32]byte{0xaa},
		PrevHash:       [32]byte{0xbb},
		Events: []event.Event{
			&event.CustodyDeposited{User: testUser, Amount: 5, Balance: 5},
			&event.CustodyDeposited{User: testUser, Amount: 3, Balance: 8},
		},
	}

	envs, err := ingestion.Envelopes(c)
	if err != nil {
		t.Fatalf("envelopes: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	for _, env := range envs {
		if env.Sequence != 7 || env.IdempotencyKey != "dep-7" || env.Timestamp != 1_700_000_000 {
			t.Errorf("envelope header: %+v", env)
		}
		if env.StateHash != hex.EncodeToString(c.StateHash[:]) {
			t.Errorf("state hash: got %s", env.StateHash)
		}
		if env.PrevHash != hex.EncodeToString(c.PrevHash[:]) {
			t.Errorf("prev hash: got %s", env.PrevHash)
		}
	}
}

func TestSubject(t *testing.T) {
	if got := ingestion.Subject(event.EventTypeWinningsClaimed); got != "flux.events.WinningsClaimed" {
		t.Errorf("subject: got %s", got)
	}
}
