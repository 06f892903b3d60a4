package battle

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/config"
	"serotonyl.ru/case-battles/internal/db/postgres"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/inventory"
	"serotonyl.ru/case-battles/internal/features/ledger"
	"serotonyl.ru/case-battles/internal/features/resolver"
)

// serialTx выполняет транзакции строго по очереди, как блокировка строки лобби.
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) WithinTransaction(ctx context.Context, txFn postgres.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return txFn(ctx, nil)
}

type memStore struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby
	updates int
}

func newMemStore() *memStore {
	return &memStore{lobbies: make(map[uuid.UUID]*Lobby)}
}

func clone(l *Lobby) *Lobby {
	c := *l
	c.CaseIDs = append([]string(nil), l.CaseIDs...)
	if l.Rounds != nil {
		c.Rounds = append([]CanonicalRound(nil), l.Rounds...)
	}
	return &c
}

func (m *memStore) Create(_ context.Context, l *Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[l.ID] = clone(l)
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil, common.NotFound("лобби не найдено")
	}
	return clone(l), nil
}

func (m *memStore) LockTx(ctx context.Context, _ postgres.Querier, id uuid.UUID) (*Lobby, error) {
	return m.Get(ctx, id)
}

func (m *memStore) UpdateTx(_ context.Context, _ postgres.Querier, l *Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[l.ID] = clone(l)
	m.updates++
	return nil
}

func (m *memStore) ListOpen(_ context.Context, _ int) ([]*Lobby, error) {
	return nil, nil
}

type fakeCatalog struct {
	cases map[string]*cases.Case
}

func (f *fakeCatalog) GetMany(_ context.Context, ids []string) ([]*cases.Case, error) {
	out := make([]*cases.Case, 0, len(ids))
	for _, id := range ids {
		c, ok := f.cases[id]
		if !ok {
			return nil, common.NotFound("кейс %s не найден", id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCatalog) OpenableMany(ctx context.Context, ids []string) ([]*cases.Case, error) {
	list, err := f.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if err := c.Openable(common.Now()); err != nil {
			return nil, err
		}
	}
	return list, nil
}

type charge struct {
	userID int64
	amount decimal.Decimal
}

type fakeWallet struct {
	charges []charge
	fail    error
}

func (f *fakeWallet) DeductTx(_ context.Context, _ postgres.Querier, userID int64, amount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	if f.fail != nil {
		return decimal.Zero, f.fail
	}
	f.charges = append(f.charges, charge{userID: userID, amount: amount})
	return decimal.Zero, nil
}

type fakeItems struct {
	items []*inventory.Item
}

func (f *fakeItems) CreateTx(_ context.Context, _ postgres.Querier, it *inventory.Item) error {
	f.items = append(f.items, it)
	return nil
}

type fakeLedger struct {
	deltas []ledger.Delta
}

func (f *fakeLedger) ApplyDeltaTx(_ context.Context, _ postgres.Querier, delta ledger.Delta) (ledger.Snapshot, error) {
	if err := ledger.ValidateDelta(delta); err != nil {
		return ledger.Snapshot{}, err
	}
	f.deltas = append(f.deltas, delta)
	return ledger.Snapshot{}, nil
}

func (f *fakeLedger) byStage(stage string) []ledger.Delta {
	var out []ledger.Delta
	for _, delta := range f.deltas {
		if delta.Metadata["stage"] == stage {
			out = append(out, delta)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *memStore
	resolver *stubResolver
	wallet   *fakeWallet
	items    *fakeItems
	ledger   *fakeLedger
}

func newFixture(outcomes []resolver.RoundOutcome) *fixture {
	price := decimal.NullDecimal{Decimal: d("1"), Valid: true}
	f := &fixture{
		store:    newMemStore(),
		resolver: &stubResolver{outcomes: outcomes},
		wallet:   &fakeWallet{},
		items:    &fakeItems{},
		ledger:   &fakeLedger{},
	}
	catalog := &fakeCatalog{cases: map[string]*cases.Case{
		"c1":   {ID: "c1", PriceUSDT: d("10"), TokenSymbol: "X", TokenPriceUSDT: price, RTUPercent: d("60"), IsActive: true},
		"c2":   {ID: "c2", PriceUSDT: d("5"), TokenSymbol: "X", TokenPriceUSDT: price, RTUPercent: d("60"), IsActive: true},
		"off":  {ID: "off", PriceUSDT: d("1"), TokenSymbol: "X", RTUPercent: d("60"), IsActive: false},
		"free": {ID: "free", PriceUSDT: d("2"), TokenSymbol: "Y", RTUPercent: d("60"), IsActive: true},
	}}
	cfg := &config.Config{BattleMaxCases: 3, FeatureBattlesEnabled: true}

	f.svc = NewService(Deps{
		Tx:       &serialTx{},
		Store:    f.store,
		Catalog:  catalog,
		Resolver: f.resolver,
		Wallet:   f.wallet,
		Items:    f.items,
		Ledger:   f.ledger,
	}, cfg)
	return f
}

var (
	alice = HumanSide{UserID: 1, Name: "alice"}
	bob   = HumanSide{UserID: 2, Name: "bob"}
	carol = HumanSide{UserID: 3, Name: "carol"}
)

func outcome(caseID, user, opponent string) resolver.RoundOutcome {
	return resolver.RoundOutcome{
		CaseID:       caseID,
		UserDrop:     catalogDrop(caseID, "u-"+user, user),
		OpponentDrop: catalogDrop(caseID, "o-"+opponent, opponent),
	}
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		host        HumanSide
		caseIDs     []string
		mode        Mode
		expectedIDs []string
		expectedErr error
	}{
		{name: "dedupe keeps order", host: alice, caseIDs: []string{"c2", "c1", "c2"}, mode: ModePVP, expectedIDs: []string{"c2", "c1"}},
		{name: "empty", host: alice, caseIDs: nil, mode: ModeBot, expectedErr: common.ErrValidation},
		{name: "too many", host: alice, caseIDs: []string{"c1", "c2", "free", "off"}, mode: ModeBot, expectedErr: common.ErrValidation},
		{name: "inactive case", host: alice, caseIDs: []string{"off"}, mode: ModeBot, expectedErr: common.ErrValidation},
		{name: "unknown case", host: alice, caseIDs: []string{"nope"}, mode: ModeBot, expectedErr: common.ErrNotFound},
		{name: "bad mode", host: alice, caseIDs: []string{"c1"}, mode: Mode("DUEL"), expectedErr: common.ErrValidation},
		{name: "no host", host: HumanSide{}, caseIDs: []string{"c1"}, mode: ModeBot, expectedErr: common.ErrValidation},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(nil)
			l, err := f.svc.Create(t.Context(), tt.host, tt.caseIDs, tt.mode)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Empty(t, f.store.lobbies)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedIDs, l.CaseIDs)
			assert.Equal(t, StatusOpen, l.Status)
			assert.Nil(t, l.JoinerUserID)
			assert.True(t, d("15").Equal(l.TotalCost))
		})
	}
}

func TestService_Create_FeatureDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.svc.enabled = false

	_, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
	assert.ErrorIs(t, err, common.ErrFeatureDisabled)
}

func TestService_Join(t *testing.T) {
	t.Parallel()

	t.Run("host joining own lobby is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModePVP)
		require.NoError(t, err)

		got, err := f.svc.Join(t.Context(), l.ID, alice)
		require.NoError(t, err)
		assert.Nil(t, got.JoinerUserID)
		assert.Zero(t, f.store.updates)
	})

	t.Run("second joiner conflicts", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModePVP)
		require.NoError(t, err)

		got, err := f.svc.Join(t.Context(), l.ID, bob)
		require.NoError(t, err)
		require.NotNil(t, got.JoinerUserID)
		assert.Equal(t, int64(2), *got.JoinerUserID)
		assert.Equal(t, StatusOpen, got.Status)

		_, err = f.svc.Join(t.Context(), l.ID, bob)
		assert.NoError(t, err)

		_, err = f.svc.Join(t.Context(), l.ID, carol)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("bot lobby cannot be joined", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)

		_, err = f.svc.Join(t.Context(), l.ID, bob)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("unknown lobby", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		_, err := f.svc.Join(t.Context(), uuid.New(), bob)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("host joining started lobby returns current state", func(t *testing.T) {
		t.Parallel()
		f := newFixture([]resolver.RoundOutcome{outcome("c1", "3", "4")})
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)
		_, err = f.svc.Start(t.Context(), l.ID, alice.UserID)
		require.NoError(t, err)

		got, err := f.svc.Join(t.Context(), l.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, got.Status)
		assert.Equal(t, 1, f.store.updates)

		_, err = f.svc.Join(t.Context(), l.ID, bob)
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func caseOrder(deltas []ledger.Delta) []string {
	out := make([]string, 0, len(deltas))
	for _, delta := range deltas {
		out = append(out, delta.CaseID)
	}
	return out
}

// Списания и записи в леджер идут в одном порядке независимо от порядка кейсов и ролей.
func TestService_LockOrder(t *testing.T) {
	t.Parallel()

	f := newFixture([]resolver.RoundOutcome{
		outcome("c2", "40", "50"),
		outcome("c1", "60", "70"),
	})
	ctx := t.Context()

	l, err := f.svc.Create(ctx, bob, []string{"c2", "c1"}, ModePVP)
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, l.ID, alice)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, l.ID, alice.UserID)
	require.NoError(t, err)

	require.Len(t, f.wallet.charges, 2)
	assert.Equal(t, alice.UserID, f.wallet.charges[0].userID)
	assert.Equal(t, bob.UserID, f.wallet.charges[1].userID)
	assert.Equal(t, []string{"c1", "c1", "c2", "c2"}, caseOrder(f.ledger.byStage("entry")))

	_, err = f.svc.Finish(ctx, l.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c1", "c2", "c2"}, caseOrder(f.ledger.byStage("award")))
}

func TestService_Start_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("host cannot start pvp", func(t *testing.T) {
		t.Parallel()
		f := newFixture([]resolver.RoundOutcome{outcome("c1", "1", "1")})
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModePVP)
		require.NoError(t, err)
		_, err = f.svc.Join(t.Context(), l.ID, bob)
		require.NoError(t, err)

		_, err = f.svc.Start(t.Context(), l.ID, alice.UserID)
		assert.ErrorIs(t, err, common.ErrHostCannotStartPvp)
		assert.ErrorIs(t, err, common.ErrConflict)
		assert.Zero(t, f.resolver.calls)
		assert.Empty(t, f.wallet.charges)
	})

	t.Run("pvp without joiner", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModePVP)
		require.NoError(t, err)

		_, err = f.svc.Start(t.Context(), l.ID, bob.UserID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)

		_, err = f.svc.Start(t.Context(), l.ID, carol.UserID)
		assert.ErrorIs(t, err, common.ErrForbidden)
	})

	t.Run("resolver returns wrong round count", func(t *testing.T) {
		t.Parallel()
		f := newFixture([]resolver.RoundOutcome{outcome("c1", "1", "1")})
		l, err := f.svc.Create(t.Context(), alice, []string{"c1", "c2"}, ModeBot)
		require.NoError(t, err)

		_, err = f.svc.Start(t.Context(), l.ID, alice.UserID)
		assert.ErrorIs(t, err, common.ErrResolveFailed)

		stored, err := f.store.Get(t.Context(), l.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, stored.Status)
		assert.Nil(t, stored.Rounds)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		t.Parallel()
		f := newFixture([]resolver.RoundOutcome{outcome("c1", "1", "1")})
		f.wallet.fail = &common.InsufficientBalanceError{Msg: "нет денег"}
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)

		_, err = f.svc.Start(t.Context(), l.ID, alice.UserID)
		assert.ErrorIs(t, err, common.ErrInsufficientBalance)
		assert.Zero(t, f.resolver.calls)
	})
}

func TestService_Start_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture([]resolver.RoundOutcome{outcome("c1", "3", "4")})
	l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
	require.NoError(t, err)

	const clicks = 10
	results := make([]*Lobby, clicks)
	errs := make([]error, clicks)

	var wg sync.WaitGroup
	for i := range clicks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Start(context.Background(), l.ID, alice.UserID)
		}(i)
	}
	wg.Wait()

	for i := range clicks {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusInProgress, results[i].Status)
		assert.Equal(t, results[0].Rounds, results[i].Rounds)
	}
	assert.Equal(t, 1, f.resolver.calls)
	assert.Equal(t, 1, f.store.updates)
	assert.Len(t, f.wallet.charges, 1)
	assert.Len(t, f.ledger.byStage("entry"), 1)
}

func TestService_PVPScenario(t *testing.T) {
	t.Parallel()

	// Бой запускает соперник: резолвер отвечает от его лица
	f := newFixture([]resolver.RoundOutcome{
		outcome("c1", "60", "70"),
		outcome("c2", "40", "50"),
	})
	ctx := t.Context()

	l, err := f.svc.Create(ctx, alice, []string{"c1", "c2"}, ModePVP)
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, l.ID, bob)
	require.NoError(t, err)

	started, err := f.svc.Start(ctx, l.ID, bob.UserID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	host, joiner := Totals(started.Rounds)
	assert.True(t, d("120").Equal(host))
	assert.True(t, d("100").Equal(joiner))

	// Вход списан с обоих, траты записаны по каждому кейсу
	require.Len(t, f.wallet.charges, 2)
	for _, c := range f.wallet.charges {
		assert.True(t, d("15").Equal(c.amount))
	}
	entry := f.ledger.byStage("entry")
	require.Len(t, entry, 4)
	spent := decimal.Zero
	for _, delta := range entry {
		assert.Equal(t, ledger.EventBattle, delta.Type)
		assert.True(t, delta.DeltaToken.IsZero())
		spent = spent.Add(delta.DeltaSpentUSDT)
	}
	assert.True(t, d("30").Equal(spent))

	// Неверный победитель отклоняется без изменений
	_, err = f.svc.FinishWithWinner(ctx, l.ID, alice.UserID, "bob")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, f.items.items)

	finished, err := f.svc.FinishWithWinner(ctx, l.ID, alice.UserID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, finished.Status)
	require.NotNil(t, finished.WinnerName)
	assert.Equal(t, "alice", *finished.WinnerName)

	require.Len(t, f.items.items, 4)
	for _, it := range f.items.items {
		assert.Equal(t, alice.UserID, it.UserID)
		assert.Equal(t, inventory.SourceBattle, it.Source)
		require.NotNil(t, it.CaseID)
	}
	assert.True(t, d("220").Equal(inventory.TotalValue(f.items.items)))

	award := f.ledger.byStage("award")
	require.Len(t, award, 4)
	issued := decimal.Zero
	for _, delta := range award {
		require.NotNil(t, delta.UserID)
		assert.Equal(t, alice.UserID, *delta.UserID)
		issued = issued.Add(delta.DeltaToken)
	}
	assert.True(t, d("220").Equal(issued))

	// Повторный финиш возвращает текущее состояние
	again, err := f.svc.Finish(ctx, l.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, again.Status)
	assert.Len(t, f.items.items, 4)

	_, rounds, err := f.svc.View(ctx, l.ID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, "u-60", rounds[0].UserDrop.Name)
	assert.Equal(t, "o-70", rounds[0].OpponentDrop.Name)
}

func TestService_BotWins(t *testing.T) {
	t.Parallel()

	f := newFixture([]resolver.RoundOutcome{
		outcome("c1", "5", "50"),
		outcome("free", "1", "1"),
	})
	ctx := t.Context()

	l, err := f.svc.Create(ctx, alice, []string{"c1", "free"}, ModeBot)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, l.ID, alice.UserID)
	require.NoError(t, err)

	finished, err := f.svc.Finish(ctx, l.ID, alice.UserID)
	require.NoError(t, err)
	require.NotNil(t, finished.WinnerName)
	assert.Equal(t, BotName, *finished.WinnerName)

	assert.Empty(t, f.items.items)

	// Кейс без цены токена в леджер не попадает
	returned := f.ledger.byStage("reserve_return")
	require.Len(t, returned, 1)
	assert.Equal(t, "c1", returned[0].CaseID)
	assert.True(t, d("-5").Equal(returned[0].DeltaToken))
}

func TestService_Finish_Rules(t *testing.T) {
	t.Parallel()

	t.Run("stranger is forbidden", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)

		_, err = f.svc.Finish(t.Context(), l.ID, carol.UserID)
		assert.ErrorIs(t, err, common.ErrForbidden)
	})

	t.Run("open lobby finishes without prizes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		l, err := f.svc.Create(t.Context(), alice, []string{"c1"}, ModeBot)
		require.NoError(t, err)

		got, err := f.svc.Finish(t.Context(), l.ID, alice.UserID)
		require.NoError(t, err)
		assert.Equal(t, StatusFinished, got.Status)
		assert.Nil(t, got.WinnerName)
		assert.Empty(t, f.items.items)
		assert.Empty(t, f.ledger.deltas)

		// FINISHED терминален: старт ничего не меняет
		again, err := f.svc.Start(t.Context(), l.ID, alice.UserID)
		require.NoError(t, err)
		assert.Equal(t, StatusFinished, again.Status)
		assert.Zero(t, f.resolver.calls)
	})

	t.Run("empty winner name", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		_, err := f.svc.FinishWithWinner(t.Context(), uuid.New(), alice.UserID, "")
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}
