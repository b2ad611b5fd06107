package core_test

import (
	"FluxLedger/internal/core"
	"FluxLedger/internal/errs"
	"FluxLedger/internal/event"
	"FluxLedger/internal/ledger"
	"FluxLedger/internal/state"
	"FluxLedger/internal/store"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// --- Test helpers ---

const startTime int64 = 1_700_000_000

var signingKey = []byte("engine-test-signing-key")

func newTestEngine(commits chan<- *store.Commit) (*core.Engine, *core.ManualClock) {
	clock := core.NewManualClock(startTime)
	nop := zerolog.Nop()
	e := core.NewEngine(core.Config{
		SigningKey: signingKey,
		Clock:      clock,
		CommitChan: commits,
		Logger:     &nop,
	})
	return e, clock
}

func mustDispatch(t *testing.T, e *core.Engine, cmd core.Command) *store.Commit {
	t.Helper()
	c, err := e.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Operation(), err)
	}
	return c
}

func expectErr(t *testing.T, e *core.Engine, cmd core.Command, want error) {
	t.Helper()
	seq := e.Sequence()
	_, err := e.Dispatch(context.Background(), cmd)
	if !errors.Is(err, want) {
		t.Fatalf("%s: got %v, want %v", cmd.Operation(), err, want)
	}
	if e.Sequence() != seq {
		t.Fatalf("%s: rejected command advanced the sequence", cmd.Operation())
	}
}

// fixture is an initialized platform with one group and one open bet.
type fixture struct {
	e     *core.Engine
	clock *core.ManualClock
	admin uuid.UUID
	group ledger.Address
	betID string
	bet   ledger.Address
}

func newFixture(t *testing.T, feeBps uint16, odds []uint16, minStake uint64) *fixture {
	t.Helper()
	e, clock := newTestEngine(nil)
	f := &fixture{e: e, clock: clock, admin: uuid.New(), betID: "btc-100k"}

	mustDispatch(t, e, &core.InitializePlatform{Admin: uuid.New(), FeeBps: feeBps})
	mustDispatch(t, e, &core.CreateGroup{Admin: f.admin, Name: "traders", Description: "weekly picks"})
	f.group = ledger.GroupAddress(f.admin, "traders")

	options := make([]string, len(odds))
	for i := range options {
		options[i] = fmt.Sprintf("option-%d", i)
	}
	mustDispatch(t, e, &core.CreateBet{
		Group:    f.group,
		Creator:  f.admin,
		BetID:    f.betID,
		Subject:  "BTC",
		Options:  options,
		Odds:     odds,
		EndTime:  startTime + 3600,
		MinStake: minStake,
	})
	f.bet = ledger.BetAddress(f.group, f.betID)
	return f
}

// member joins the group and funds a custody account.
func (f *fixture) member(t *testing.T, deposit uint64) uuid.UUID {
	t.Helper()
	u := uuid.New()
	mustDispatch(t, f.e, &core.JoinGroup{Group: f.group, User: u})
	if deposit > 0 {
		mustDispatch(t, f.e, &core.Deposit{User: u, Amount: deposit})
	}
	return u
}

func (f *fixture) place(user uuid.UUID, amount uint64, option uint8) *core.PlaceBet {
	return &core.PlaceBet{Group: f.group, BetID: f.betID, User: user, Amount: amount, OptionIndex: option}
}

func (f *fixture) resolve(resolver uuid.UUID, winner uint8) *core.ResolveBet {
	return &core.ResolveBet{Group: f.group, BetID: f.betID, Resolver: resolver, WinningOption: winner, ResolvedValue: 101_250}
}

func (f *fixture) claim(user uuid.UUID) *core.ClaimWinnings {
	return &core.ClaimWinnings{Group: f.group, BetID: f.betID, User: user}
}

func (f *fixture) loadBet(t *testing.T) *state.Bet {
	t.Helper()
	b, err := f.e.Bet(f.group, f.betID)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	return b
}

// --- Platform registry ---

func TestInitializePlatform_Once(t *testing.T) {
	e, _ := newTestEngine(nil)

	expectErr(t, e, &core.CreateGroup{Admin: uuid.New(), Name: "early"}, errs.ErrPlatformNotInitialized)
	expectErr(t, e, &core.Deposit{User: uuid.New(), Amount: 10}, errs.ErrPlatformNotInitialized)
	expectErr(t, e, &core.InitializePlatform{FeeBps: 10_001}, errs.ErrInvalidFeePercentage)

	admin := uuid.New()
	mustDispatch(t, e, &core.InitializePlatform{Admin: admin, FeeBps: 10_000})
	expectErr(t, e, &core.InitializePlatform{Admin: admin, FeeBps: 100}, errs.ErrPlatformAlreadyInitialized)

	p, err := e.Platform()
	if err != nil {
		t.Fatal(err)
	}
	if p.Admin != admin || p.FeeBps != 10_000 || p.TotalBets != 0 || p.TotalUsers != 0 || p.TotalGroups != 0 {
		t.Errorf("platform: %+v", p)
	}
	if p.Treasury != ledger.TreasuryAccountKey() {
		t.Errorf("treasury: %s", p.Treasury)
	}
	if p.InitializedAt != startTime {
		t.Errorf("initialized_at: got %d, want %d", p.InitializedAt, startTime)
	}
}

// --- Groups ---

func TestCreateGroup_AdminBecomesMember(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustDispatch(t, e, &core.InitializePlatform{FeeBps: 0})

	admin := uuid.New()
	mustDispatch(t, e, &core.CreateGroup{Admin: admin, Name: "club", Description: "d"})
	expectErr(t, e, &core.CreateGroup{Admin: admin, Name: "club"}, errs.ErrGroupAlreadyExists)
	expectErr(t, e, &core.CreateGroup{Admin: admin, Name: strings.Repeat("x", 33)}, errs.ErrInvalidIdentifier)
	expectErr(t, e, &core.CreateGroup{Admin: admin, Name: ""}, errs.ErrInvalidIdentifier)

	// Same name under another admin is a different group.
	mustDispatch(t, e, &core.CreateGroup{Admin: uuid.New(), Name: "club"})

	addr := ledger.GroupAddress(admin, "club")
	g, err := e.Group(addr)
	if err != nil {
		t.Fatal(err)
	}
	if g.Admin != admin || !g.IsMember(admin) || g.Members.Len() != 1 {
		t.Errorf("group: %+v", g)
	}
	prof, err := e.Profile(admin)
	if err != nil {
		t.Fatal(err)
	}
	if !prof.Groups.Contains(addr) {
		t.Error("group missing from admin profile")
	}

	p, _ := e.Platform()
	if p.TotalGroups != 2 || p.TotalUsers != 2 {
		t.Errorf("counters: groups=%d users=%d, want 2 and 2", p.TotalGroups, p.TotalUsers)
	}
}

func TestJoinGroup(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 1)
	u := uuid.New()

	mustDispatch(t, f.e, &core.JoinGroup{Group: f.group, User: u})
	expectErr(t, f.e, &core.JoinGroup{Group: f.group, User: u}, errs.ErrAlreadyMember)
	expectErr(t, f.e, &core.JoinGroup{Group: f.group, User: f.admin}, errs.ErrAlreadyMember)
	expectErr(t, f.e, &core.JoinGroup{Group: ledger.GroupAddress(u, "nope"), User: u}, errs.ErrGroupNotFound)

	g, _ := f.e.Group(f.group)
	if !g.IsMember(u) || g.Members.Len() != 2 {
		t.Errorf("members: %v", g.Members.Items())
	}
	prof, err := f.e.Profile(u)
	if err != nil || !prof.Groups.Contains(f.group) {
		t.Errorf("profile: %+v %v", prof, err)
	}
	p, _ := f.e.Platform()
	if p.TotalUsers != 2 {
		t.Errorf("total users: got %d, want 2", p.TotalUsers)
	}
}

// --- Bet lifecycle ---

func TestCreateBet_Validation(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 1)
	member := f.member(t, 0)

	base := func() *core.CreateBet {
		return &core.CreateBet{
			Group:   f.group,
			Creator: f.admin,
			BetID:   "eth-5k",
			Subject: "ETH",
			Options: []string{"yes", "no"},
			Odds:    []uint16{180, 220},
			EndTime: startTime + 60,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *core.CreateBet)
		want   error
	}{
		{"non-admin creator", func(c *core.CreateBet) { c.Creator = member }, errs.ErrUnauthorizedBetCreator},
		{"one option", func(c *core.CreateBet) { c.Options, c.Odds = []string{"a"}, []uint16{100} }, errs.ErrTooFewOptions},
		{"eleven options", func(c *core.CreateBet) {
			c.Options, c.Odds = make([]string, 11), make([]uint16, 11)
		}, errs.ErrTooManyOptions},
		{"odds mismatch", func(c *core.CreateBet) { c.Odds = []uint16{100} }, errs.ErrOptionOddsMismatch},
		{"end time now", func(c *core.CreateBet) { c.EndTime = startTime }, errs.ErrBetPeriodEnded},
		{"empty id", func(c *core.CreateBet) { c.BetID = "" }, errs.ErrInvalidIdentifier},
		{"duplicate id", func(c *core.CreateBet) { c.BetID = f.betID }, errs.ErrBetAlreadyExists},
		{"unknown group", func(c *core.CreateBet) { c.Group = ledger.GroupAddress(member, "x") }, errs.ErrGroupNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := base()
			tt.mutate(cmd)
			expectErr(t, f.e, cmd, tt.want)
		})
	}

	// Boundaries: exactly 10 options is accepted.
	ten := base()
	ten.BetID = "ten"
	ten.Options, ten.Odds = make([]string, 10), make([]uint16, 10)
	mustDispatch(t, f.e, ten)

	p, _ := f.e.Platform()
	if p.TotalBets != 2 {
		t.Errorf("total bets: got %d, want 2", p.TotalBets)
	}
}

func TestCreateBet_Initialized(t *testing.T) {
	f := newFixture(t, 0, []uint16{250, 150, 300}, 10)

	b := f.loadBet(t)
	if b.Status() != state.BetStatusOpen || b.TotalPool != 0 || len(b.StakePerOption) != 3 {
		t.Errorf("bet: %+v", b)
	}
	if b.WinningOption != nil || b.ResolvedValue != nil {
		t.Error("unresolved bet has an outcome")
	}
	g, _ := f.e.Group(f.group)
	if !g.ActiveBets.Contains(f.bet) {
		t.Error("bet missing from group active list")
	}
	prof, _ := f.e.Profile(f.admin)
	if !prof.ActiveBets.Contains(f.bet) {
		t.Error("bet missing from creator active list")
	}
}

func TestPlaceBet_UpdatesPoolAndCustody(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 100)
	alice := f.member(t, 1_000)
	bob := f.member(t, 1_000)

	mustDispatch(t, f.e, f.place(alice, 300, 0))
	mustDispatch(t, f.e, f.place(bob, 500, 1))

	b := f.loadBet(t)
	if b.TotalPool != 800 || b.StakePerOption[0] != 300 || b.StakePerOption[1] != 500 {
		t.Errorf("pool=%d per_option=%v", b.TotalPool, b.StakePerOption)
	}
	if f.e.Balance(alice) != 700 || f.e.Balance(bob) != 500 || f.e.TreasuryBalance() != 800 {
		t.Errorf("balances alice=%d bob=%d treasury=%d", f.e.Balance(alice), f.e.Balance(bob), f.e.TreasuryBalance())
	}

	ub, err := f.e.UserBet(f.bet, alice)
	if err != nil {
		t.Fatal(err)
	}
	if ub.Amount != 300 || ub.OptionIndex != 0 || ub.Claimed || ub.Winnings != nil {
		t.Errorf("user bet: %+v", ub)
	}
	prof, _ := f.e.Profile(alice)
	if !prof.ActiveBets.Contains(f.bet) {
		t.Error("bet missing from staker active list")
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 100)
	alice := f.member(t, 1_000)
	poor := f.member(t, 150)
	outsider := uuid.New()
	mustDispatch(t, f.e, &core.Deposit{User: outsider, Amount: 1_000})

	// Scenario C
	expectErr(t, f.e, f.place(alice, 50, 0), errs.ErrBetAmountBelowMinimum)
	expectErr(t, f.e, f.place(alice, 100, 2), errs.ErrInvalidOptionIndex)
	expectErr(t, f.e, f.place(outsider, 100, 0), errs.ErrNotGroupMember)
	expectErr(t, f.e, f.place(poor, 200, 0), errs.ErrInsufficientCustody)
	expectErr(t, f.e, &core.PlaceBet{Group: f.group, BetID: "missing", User: alice, Amount: 100}, errs.ErrBetNotFound)

	mustDispatch(t, f.e, f.place(alice, 100, 0))
	expectErr(t, f.e, f.place(alice, 100, 1), errs.ErrStakeAlreadyPlaced)

	f.clock.Set(startTime + 3600)
	expectErr(t, f.e, f.place(poor, 100, 0), errs.ErrBetPeriodEnded)

	b := f.loadBet(t)
	if b.TotalPool != 100 {
		t.Errorf("rejected stakes reached the pool: %d", b.TotalPool)
	}
	if f.e.Balance(poor) != 150 || f.e.Balance(alice) != 900 {
		t.Errorf("rejected stakes moved custody: poor=%d alice=%d", f.e.Balance(poor), f.e.Balance(alice))
	}
	if _, err := f.e.UserBet(f.bet, poor); !errors.Is(err, errs.ErrStakeNotFound) {
		t.Errorf("rejected stake left a record: %v", err)
	}
}

func TestResolveBet(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 1)
	member := f.member(t, 0)
	platformAdmin := func() uuid.UUID { p, _ := f.e.Platform(); return p.Admin }()

	// Scenario D
	expectErr(t, f.e, f.resolve(member, 0), errs.ErrUnauthorizedResolver)
	expectErr(t, f.e, f.resolve(platformAdmin, 0), errs.ErrUnauthorizedResolver)
	expectErr(t, f.e, f.resolve(f.admin, 2), errs.ErrInvalidOptionIndex)

	// Resolution is allowed before the window closes.
	mustDispatch(t, f.e, f.resolve(f.admin, 1))
	expectErr(t, f.e, f.resolve(f.admin, 0), errs.ErrBetAlreadyResolved)
	expectErr(t, f.e, f.place(member, 10, 0), errs.ErrBetAlreadyResolved)

	b := f.loadBet(t)
	if b.Status() != state.BetStatusResolved || *b.WinningOption != 1 || *b.ResolvedValue != 101_250 {
		t.Errorf("bet: %+v", b)
	}
	if b.ResolvedAt == nil || *b.ResolvedAt != startTime {
		t.Errorf("resolved_at: %v", b.ResolvedAt)
	}

	g, _ := f.e.Group(f.group)
	if g.ActiveBets.Contains(f.bet) || !g.PastBets.Contains(f.bet) {
		t.Errorf("group lists: active=%v past=%v", g.ActiveBets.Items(), g.PastBets.Items())
	}
}

// --- Settlement ---

func TestScenarioA_FeeAdjustedClaim(t *testing.T) {
	f := newFixture(t, 500, []uint16{250, 150}, 100)
	alice := f.member(t, 5_000)
	bob := f.member(t, 5_000)

	mustDispatch(t, f.e, f.place(alice, 1_000, 0))
	mustDispatch(t, f.e, f.place(bob, 2_000, 1))
	expectErr(t, f.e, f.claim(alice), errs.ErrBetNotResolved)
	mustDispatch(t, f.e, f.resolve(f.admin, 0))

	c := mustDispatch(t, f.e, f.claim(alice))
	var claimed *event.WinningsClaimed
	for _, evt := range c.Events {
		if wc, ok := evt.(*event.WinningsClaimed); ok {
			claimed = wc
		}
	}
	if claimed == nil || claimed.Gross != 2_500 || claimed.Fee != 125 || claimed.Net != 2_375 {
		t.Fatalf("claim event: %+v", claimed)
	}

	if got := f.e.Balance(alice); got != 5_000-1_000+2_375 {
		t.Errorf("alice balance: got %d, want %d", got, 5_000-1_000+2_375)
	}
	if got := f.e.TreasuryBalance(); got != 3_000-2_375 {
		t.Errorf("treasury: got %d, want %d", got, 3_000-2_375)
	}

	ub, _ := f.e.UserBet(f.bet, alice)
	if !ub.Claimed || ub.Winnings == nil || *ub.Winnings != 2_375 {
		t.Errorf("user bet: %+v", ub)
	}
	prof, _ := f.e.Profile(alice)
	if prof.TotalWinnings != 2_375 || prof.ActiveBets.Contains(f.bet) || !prof.PastBets.Contains(f.bet) {
		t.Errorf("profile: winnings=%d active=%v past=%v", prof.TotalWinnings, prof.ActiveBets.Items(), prof.PastBets.Items())
	}

	// Single claim
	expectErr(t, f.e, f.claim(alice), errs.ErrNoWinningsToClaim)
	// Scenario E
	expectErr(t, f.e, f.claim(bob), errs.ErrNoWinningsToClaim)
	expectErr(t, f.e, f.claim(uuid.New()), errs.ErrStakeNotFound)
}

func TestScenarioB_BreakEven(t *testing.T) {
	f := newFixture(t, 0, []uint16{100, 100}, 1)
	alice := f.member(t, 1_000)

	mustDispatch(t, f.e, f.place(alice, 1_000, 1))
	mustDispatch(t, f.e, f.resolve(f.admin, 1))
	mustDispatch(t, f.e, f.claim(alice))

	if f.e.Balance(alice) != 1_000 || f.e.TreasuryBalance() != 0 {
		t.Errorf("alice=%d treasury=%d", f.e.Balance(alice), f.e.TreasuryBalance())
	}
}

func TestClaim_PayoutExceedsPool(t *testing.T) {
	f := newFixture(t, 0, []uint16{1_000, 100}, 1)
	alice := f.member(t, 1_000)

	mustDispatch(t, f.e, f.place(alice, 1_000, 0))
	mustDispatch(t, f.e, f.resolve(f.admin, 0))
	expectErr(t, f.e, f.claim(alice), errs.ErrInsufficientFunds)

	ub, _ := f.e.UserBet(f.bet, alice)
	if ub.Claimed {
		t.Error("failed claim marked the stake claimed")
	}
}

// Each claim is checked against the whole pool. When earlier claims have
// drained the treasury, custody is what stops the later one.
func TestClaim_WholePoolCheckBackedByCustody(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 200}, 1)
	alice := f.member(t, 1_000)
	bob := f.member(t, 1_000)
	carol := f.member(t, 1_000)

	mustDispatch(t, f.e, f.place(alice, 1_000, 0))
	mustDispatch(t, f.e, f.place(bob, 1_000, 0))
	mustDispatch(t, f.e, f.place(carol, 1_000, 1))
	mustDispatch(t, f.e, f.resolve(f.admin, 0))

	mustDispatch(t, f.e, f.claim(alice))
	expectErr(t, f.e, f.claim(bob), errs.ErrInsufficientCustody)

	if f.e.TreasuryBalance() != 1_000 || f.e.Balance(alice) != 2_000 {
		t.Errorf("treasury=%d alice=%d", f.e.TreasuryBalance(), f.e.Balance(alice))
	}
}

// --- Custody ---

func TestDepositWithdraw(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustDispatch(t, e, &core.InitializePlatform{})
	u := uuid.New()

	mustDispatch(t, e, &core.Deposit{User: u, Amount: 500})
	expectErr(t, e, &core.Withdraw{User: u, Amount: 501}, errs.ErrInsufficientCustody)
	c := mustDispatch(t, e, &core.Withdraw{User: u, Amount: 200})

	if e.Balance(u) != 300 {
		t.Errorf("balance: got %d, want 300", e.Balance(u))
	}
	w, ok := c.Events[0].(*event.CustodyWithdrawn)
	if !ok || w.Balance != 300 || w.Amount != 200 {
		t.Errorf("event: %+v", c.Events)
	}
}

// --- Idempotency ---

func TestDispatch_DuplicateRequestAppliedOnce(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustDispatch(t, e, &core.InitializePlatform{RequestID: "init"})
	u := uuid.New()

	first := mustDispatch(t, e, &core.Deposit{RequestID: "dep-1", User: u, Amount: 100})
	if first == nil {
		t.Fatal("first delivery should commit")
	}
	again := mustDispatch(t, e, &core.Deposit{RequestID: "dep-1", User: u, Amount: 100})
	if again != nil {
		t.Error("redelivery should not commit")
	}

	// Keys are scoped by operation.
	mustDispatch(t, e, &core.Withdraw{RequestID: "dep-1", User: u, Amount: 10})

	if e.Balance(u) != 90 {
		t.Errorf("balance: got %d, want 90", e.Balance(u))
	}
}

func TestDispatch_ConcurrentRedeliveries(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustDispatch(t, e, &core.InitializePlatform{})
	u := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Dispatch(context.Background(), &core.Deposit{RequestID: "same", User: u, Amount: 7}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if e.Balance(u) != 7 {
		t.Errorf("balance: got %d, want 7", e.Balance(u))
	}
}

type stubDB struct{ keys map[string]bool }

func (s stubDB) IsDuplicate(operation, key string) (bool, error) {
	return s.keys[operation+":"+key], nil
}

func TestDispatch_PostgresTier(t *testing.T) {
	nop := zerolog.Nop()
	e := core.NewEngine(core.Config{
		SigningKey: signingKey,
		Clock:      core.NewManualClock(startTime),
		Logger:     &nop,
		DBChecker:  stubDB{keys: map[string]bool{"deposit:old": true}},
	})
	mustDispatch(t, e, &core.InitializePlatform{})
	u := uuid.New()

	if c := mustDispatch(t, e, &core.Deposit{RequestID: "old", User: u, Amount: 5}); c != nil {
		t.Error("request known to Postgres should be skipped")
	}
	if e.Balance(u) != 0 {
		t.Errorf("balance: got %d, want 0", e.Balance(u))
	}
}

// --- Concurrency ---

func TestPlaceBet_ConcurrentStakesKeepPoolConsistent(t *testing.T) {
	f := newFixture(t, 0, []uint16{200, 300, 150}, 1)

	const stakers = 40
	users := make([]uuid.UUID, stakers)
	for i := range users {
		users[i] = f.member(t, 1_000)
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u uuid.UUID) {
			defer wg.Done()
			if _, err := f.e.Dispatch(context.Background(), f.place(u, uint64(10+i), uint8(i%3))); err != nil {
				t.Error(err)
			}
		}(i, u)
	}
	wg.Wait()

	var want uint64
	for i := range users {
		want += uint64(10 + i)
	}
	b := f.loadBet(t)
	if b.TotalPool != want || f.e.TreasuryBalance() != want {
		t.Errorf("pool=%d treasury=%d, want %d", b.TotalPool, f.e.TreasuryBalance(), want)
	}
}

func TestClaim_ConcurrentWinnersNeverOverdrawTreasury(t *testing.T) {
	f := newFixture(t, 0, []uint16{300, 100}, 1)

	winners := make([]uuid.UUID, 10)
	for i := range winners {
		winners[i] = f.member(t, 100)
		mustDispatch(t, f.e, f.place(winners[i], 100, 0))
	}
	mustDispatch(t, f.e, f.resolve(f.admin, 0))

	// Pool 1000, each payout 300: only three claims can be funded.
	var wg sync.WaitGroup
	var mu sync.Mutex
	paid := 0
	for _, u := range winners {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			_, err := f.e.Dispatch(context.Background(), f.claim(u))
			switch {
			case err == nil:
				mu.Lock()
				paid++
				mu.Unlock()
			case !errors.Is(err, errs.ErrInsufficientCustody):
				t.Error(err)
			}
		}(u)
	}
	wg.Wait()

	if paid != 3 || f.e.TreasuryBalance() != 100 {
		t.Errorf("paid=%d treasury=%d, want 3 and 100", paid, f.e.TreasuryBalance())
	}
}

// --- Commit stream ---

func TestCommitStream_EventsAndHashChain(t *testing.T) {
	commits := make(chan *store.Commit, 64)
	e, _ := newTestEngine(commits)
	admin := uuid.New()

	mustDispatch(t, e, &core.InitializePlatform{Admin: admin, FeeBps: 100})
	mustDispatch(t, e, &core.CreateGroup{Admin: admin, Name: "g"})
	expectErr(t, e, &core.CreateGroup{Admin: admin, Name: "g"}, errs.ErrGroupAlreadyExists)
	mustDispatch(t, e, &core.Deposit{User: admin, Amount: 1})
	close(commits)

	wantTypes := []event.EventType{
		event.EventTypePlatformInitialized,
		event.EventTypeGroupCreated,
		event.EventTypeCustodyDeposited,
	}
	prev := store.GenesisHash()
	i := 0
	for c := range commits {
		if c.Sequence != int64(i+1) {
			t.Errorf("commit %d: sequence %d", i, c.Sequence)
		}
		if c.PrevHash != prev {
			t.Errorf("commit %d: chain broken", i)
		}
		if len(c.Events) != 1 || c.Events[0].EventType() != wantTypes[i] {
			t.Errorf("commit %d: events %v", i, c.Events)
		}
		prev = c.StateHash
		i++
	}
	if i != 3 || prev != e.StateHash() {
		t.Errorf("got %d commits, tip match=%v", i, prev == e.StateHash())
	}
}

func TestRejection(t *testing.T) {
	cmd := &core.PlaceBet{RequestID: "r-1"}
	rej := core.Rejection(cmd, fmt.Errorf("bet %q: %w", "x", errs.ErrBetPeriodEnded))

	if rej.Operation != core.OpPlaceBet || rej.RequestID != "r-1" || rej.Code != "BetPeriodEnded" || rej.Kind != "state" {
		t.Errorf("rejection: %+v", rej)
	}
	if core.Rejection(cmd, errors.New("boom")).Code != "Internal" {
		t.Error("uncatalogued errors should map to Internal")
	}
}
