package ledger_test

import (
	"FluxLedger/internal/errs"
	"FluxLedger/internal/ledger"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func deposit(userID uuid.UUID, amount uint64) *ledger.Batch {
	b := ledger.NewBatch("dep-"+userID.String(), 1)
	b.Add(ledger.NewUserAccountKey(userID), ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits),
		amount, ledger.JournalTypeDeposit)
	return b
}

// ============================================================================
// Test: Address derivation
// ============================================================================

func TestAddress_Deterministic(t *testing.T) {
	admin := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	a := ledger.GroupAddress(admin, "friday-poker")
	b := ledger.GroupAddress(admin, "friday-poker")
	if a != b {
		t.Errorf("same seeds produced %s and %s", a, b)
	}

	if ledger.GroupAddress(admin, "friday-pokeR") == a {
		t.Error("different name should produce a different address")
	}
	if ledger.GroupAddress(uuid.New(), "friday-poker") == a {
		t.Error("different admin should produce a different address")
	}
}

func TestAddress_NamespacesDoNotCollide(t *testing.T) {
	user := uuid.New()
	group := ledger.GroupAddress(user, "g")
	bet := ledger.BetAddress(group, "b")

	seen := map[ledger.Address]string{
		ledger.PlatformAddress():         "platform",
		group:                            "group",
		bet:                              "bet",
		ledger.UserBetAddress(bet, user): "user_bet",
		ledger.UserProfileAddress(user):  "user_profile",
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct addresses, got %d", len(seen))
	}
}

func TestAddress_LengthPrefixed(t *testing.T) {
	a := ledger.DeriveAddress("bet", []byte("ab"), []byte("c"))
	b := ledger.DeriveAddress("bet", []byte("a"), []byte("bc"))
	if a == b {
		t.Error("field boundaries must be part of the derivation")
	}
}

func TestAddress_TextRoundTrip(t *testing.T) {
	addr := ledger.UserProfileAddress(uuid.New())

	raw, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(raw) != 66 { // 64 hex chars + quotes
		t.Errorf("got %d bytes, want 66: %s", len(raw), raw)
	}

	var back ledger.Address
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != addr {
		t.Errorf("got %s, want %s", back, addr)
	}

	if _, err := ledger.ParseAddress("abcd"); err == nil {
		t.Error("short address should fail to parse")
	}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_Paths(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		key  ledger.AccountKey
		want string
	}{
		{ledger.NewUserAccountKey(userID), "user:550e8400-e29b-41d4-a716-446655440000:custody"},
		{ledger.TreasuryAccountKey(), "system:treasury:treasury"},
		{ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits), "external:deposits"},
		{ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals), "external:withdrawals"},
	}

	for _, tt := range tests {
		if got := tt.key.AccountPath(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
		parsed, err := ledger.ParseAccountPath(tt.want)
		if err != nil {
			t.Errorf("parse %q: %v", tt.want, err)
			continue
		}
		if parsed != tt.key {
			t.Errorf("parse %q: got %+v, want %+v", tt.want, parsed, tt.key)
		}
	}
}

func TestAccountKey_ParseRejectsGarbage(t *testing.T) {
	for _, p := range []string{"", "user:not-a-uuid:custody", "system:treasury", "external:fees", "moon:x:y"} {
		if _, err := ledger.ParseAccountPath(p); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

func TestAccountKey_UserID(t *testing.T) {
	userID := uuid.New()
	got, ok := ledger.NewUserAccountKey(userID).UserID()
	if !ok || got != userID {
		t.Errorf("got (%s, %v), want (%s, true)", got, ok, userID)
	}
	if _, ok := ledger.TreasuryAccountKey().UserID(); ok {
		t.Error("treasury has no user")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	if balance := bt.GetBalance(ledger.NewUserAccountKey(uuid.New())); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	touched, err := bt.ApplyBatch(deposit(userID, 500_000))
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if len(touched) != 2 || touched[ledger.NewUserAccountKey(userID)] != 500_000 {
		t.Errorf("touched balances: got %v", touched)
	}

	if got := bt.GetBalance(ledger.NewUserAccountKey(userID)); got != 500_000 {
		t.Errorf("got %d, want 500_000", got)
	}
	if got := bt.GetBalance(ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits)); got != 500_000 {
		t.Errorf("deposits counter: got %d, want 500_000", got)
	}
}

func TestBalanceTracker_StakeAndPayout(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	user := ledger.NewUserAccountKey(userID)
	treasury := ledger.TreasuryAccountKey()

	mustApply(t, bt, deposit(userID, 1_000))

	stake := ledger.NewBatch("stake", 2)
	stake.Add(treasury, user, 400, ledger.JournalTypeStake)
	mustApply(t, bt, stake)

	payout := ledger.NewBatch("payout", 3)
	payout.Add(user, treasury, 150, ledger.JournalTypePayout)
	mustApply(t, bt, payout)

	if got := bt.GetBalance(ledger.NewUserAccountKey(userID)); got != 750 {
		t.Errorf("user: got %d, want 750", got)
	}
	if got := bt.GetTreasuryBalance(); got != 250 {
		t.Errorf("treasury: got %d, want 250", got)
	}
}

func TestBalanceTracker_InsufficientCustody_NoPartialApply(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	user := ledger.NewUserAccountKey(userID)
	treasury := ledger.TreasuryAccountKey()

	mustApply(t, bt, deposit(userID, 100))

	// First leg fits, second does not.
	b := ledger.NewBatch("two-legs", 2)
	b.Add(treasury, user, 60, ledger.JournalTypeStake)
	b.Add(treasury, user, 60, ledger.JournalTypeStake)

	_, err := bt.ApplyBatch(b)
	if !errors.Is(err, errs.ErrInsufficientCustody) {
		t.Fatalf("got %v, want ErrInsufficientCustody", err)
	}
	if got := bt.GetBalance(ledger.NewUserAccountKey(userID)); got != 100 {
		t.Errorf("user balance changed on failed batch: got %d, want 100", got)
	}
	if got := bt.GetTreasuryBalance(); got != 0 {
		t.Errorf("treasury changed on failed batch: got %d", got)
	}
}

func TestBalanceTracker_PreviewWithBase(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	user := ledger.NewUserAccountKey(userID)

	b := ledger.NewBatch("stake", 1)
	b.Add(ledger.TreasuryAccountKey(), user, 70, ledger.JournalTypeStake)

	if _, err := bt.Preview(b, nil); !errors.Is(err, errs.ErrInsufficientCustody) {
		t.Fatalf("without base: got %v, want ErrInsufficientCustody", err)
	}

	next, err := bt.Preview(b, map[ledger.AccountKey]uint64{user: 100})
	if err != nil {
		t.Fatalf("with base: %v", err)
	}
	if next[user] != 30 || next[ledger.TreasuryAccountKey()] != 70 {
		t.Errorf("got %v", next)
	}
	if bt.GetBalance(ledger.NewUserAccountKey(userID)) != 0 {
		t.Error("preview must not mutate the tracker")
	}
}

func TestValidateSufficient(t *testing.T) {
	key := ledger.NewUserAccountKey(uuid.New())

	if err := ledger.ValidateSufficient(key, 1_000, 1_000); err != nil {
		t.Errorf("exact balance should cover: %v", err)
	}
	if err := ledger.ValidateSufficient(key, 1_000, 1_001); !errors.Is(err, errs.ErrInsufficientCustody) {
		t.Errorf("got %v, want ErrInsufficientCustody", err)
	}
	if err := ledger.ValidateSufficient(key, 0, 0); err != nil {
		t.Errorf("zero amount: %v", err)
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := ledger.NewBatch("empty", 1)

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batch := deposit(uuid.New(), 0)

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	same := ledger.NewUserAccountKey(uuid.New())
	batch := ledger.NewBatch("self", 1)
	batch.Add(same, same, 100, ledger.JournalTypeStake)

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batch := deposit(uuid.New(), 100)
	batch.Journals[0].BatchID = uuid.New()

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

func TestBatchValidate_WrongBoundaryDirection_Fails(t *testing.T) {
	user := ledger.NewUserAccountKey(uuid.New())

	batch := ledger.NewBatch("mint-via-withdrawals", 1)
	batch.Add(user, ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals), 100, ledger.JournalTypeDeposit)
	if err := batch.Validate(); err == nil {
		t.Error("crediting the withdrawals boundary should fail validation")
	}

	batch = ledger.NewBatch("burn-via-deposits", 1)
	batch.Add(ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits), user, 100, ledger.JournalTypeWithdrawal)
	if err := batch.Validate(); err == nil {
		t.Error("debiting the deposits boundary should fail validation")
	}
}

func TestBatch_Stamp(t *testing.T) {
	batch := deposit(uuid.New(), 100)
	batch.Stamp(42)

	if batch.Sequence != 42 || batch.Journals[0].Sequence != 42 {
		t.Errorf("got batch=%d journal=%d, want 42", batch.Sequence, batch.Journals[0].Sequence)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_Conservation(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateConservation(); err != nil {
		t.Errorf("empty ledger should be conserved: %v", err)
	}

	userID := uuid.New()
	user := ledger.NewUserAccountKey(userID)
	mustApply(t, bt, deposit(userID, 1_000))

	stake := ledger.NewBatch("stake", 2)
	stake.Add(ledger.TreasuryAccountKey(), user, 300, ledger.JournalTypeStake)
	mustApply(t, bt, stake)

	withdraw := ledger.NewBatch("withdraw", 3)
	withdraw.Add(ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals), user, 200, ledger.JournalTypeWithdrawal)
	mustApply(t, bt, withdraw)

	if err := v.ValidateConservation(); err != nil {
		t.Errorf("balanced ledger should be conserved: %v", err)
	}

	// Forge a balance out of thin air.
	bt.SetBalances(map[ledger.AccountKey]uint64{user: 10_000})
	if err := v.ValidateConservation(); err == nil {
		t.Error("forged balance should break conservation")
	}
}

func TestInvariantValidator_TreasuryCovers(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	bt.SetBalances(map[ledger.AccountKey]uint64{ledger.TreasuryAccountKey(): 500})

	if err := v.ValidateTreasuryCovers(500); err != nil {
		t.Errorf("unexpected: %v", err)
	}
	if err := v.ValidateTreasuryCovers(501); !errors.Is(err, errs.ErrInsufficientCustody) {
		t.Errorf("shortfall: got %v, want ErrInsufficientCustody", err)
	}
}

func mustApply(t *testing.T, bt *ledger.BalanceTracker, b *ledger.Batch) {
	t.Helper()
	if _, err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("ApplyBatch(%s): %v", b.EventRef, err)
	}
}
