package battle

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/features/cases"
	"serotonyl.ru/case-battles/internal/features/resolver"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func catalogDrop(caseID, name, value string) cases.Drop {
	return cases.Drop{CaseID: caseID, Name: name, Value: d(value), Currency: "X", Rarity: "common"}
}

type stubResolver struct {
	outcomes []resolver.RoundOutcome
	err      error
	calls    int
}

func (s *stubResolver) ResolveDrops(_ context.Context, _ []string, _ resolver.Mode) ([]resolver.RoundOutcome, error) {
	s.calls++
	return s.outcomes, s.err
}

func (s *stubResolver) DrawDrop(_ context.Context, _ string) (cases.Drop, error) {
	return cases.Drop{}, nil
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	outcomes := []resolver.RoundOutcome{
		{UserDrop: catalogDrop("c1", "mine", "10"), OpponentDrop: catalogDrop("c1", "theirs", "20")},
	}

	tests := []struct {
		name           string
		mode           Mode
		starter        Role
		expectedHost   string
		expectedJoiner string
	}{
		{name: "pvp host starter", mode: ModePVP, starter: RoleHost, expectedHost: "mine", expectedJoiner: "theirs"},
		{name: "pvp joiner starter", mode: ModePVP, starter: RoleJoiner, expectedHost: "theirs", expectedJoiner: "mine"},
		{name: "bot ignores starter", mode: ModeBot, starter: RoleJoiner, expectedHost: "mine", expectedJoiner: "theirs"},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rounds := Canonicalize(outcomes, []string{"c1"}, tt.mode, tt.starter)
			require.Len(t, rounds, 1)
			assert.Equal(t, "c1", rounds[0].CaseID)
			assert.Equal(t, tt.expectedHost, rounds[0].HostDrop.Name)
			assert.Equal(t, tt.expectedJoiner, rounds[0].JoinerDrop.Name)
		})
	}
}

func TestResolveCanonicalRounds_LengthMismatch(t *testing.T) {
	t.Parallel()

	r := &stubResolver{outcomes: []resolver.RoundOutcome{
		{UserDrop: catalogDrop("a", "x", "1"), OpponentDrop: catalogDrop("a", "y", "1")},
	}}

	_, err := ResolveCanonicalRounds(t.Context(), r, []string{"a", "b"}, ModeBot, RoleHost)

	assert.ErrorIs(t, err, common.ErrResolveFailed)
}

func TestResolveCanonicalRounds_NoCases(t *testing.T) {
	t.Parallel()

	r := &stubResolver{}
	_, err := ResolveCanonicalRounds(t.Context(), r, nil, ModeBot, RoleHost)

	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Zero(t, r.calls)
}

func TestLobby_ViewFor_Symmetry(t *testing.T) {
	t.Parallel()

	joiner := int64(2)
	joinerName := "bob"
	l := &Lobby{
		HostUserID:   1,
		HostName:     "alice",
		JoinerUserID: &joiner,
		JoinerName:   &joinerName,
		Mode:         ModePVP,
		Rounds: Canonicalize([]resolver.RoundOutcome{
			{UserDrop: catalogDrop("c1", "j1", "3"), OpponentDrop: catalogDrop("c1", "h1", "7")},
			{UserDrop: catalogDrop("c2", "j2", "4"), OpponentDrop: catalogDrop("c2", "h2", "1")},
		}, []string{"c1", "c2"}, ModePVP, RoleJoiner),
	}

	hostView := l.ViewFor(1)
	joinerView := l.ViewFor(2)
	spectatorView := l.ViewFor(99)

	require.Len(t, hostView, 2)
	for i := range hostView {
		assert.Equal(t, hostView[i].UserDrop, joinerView[i].OpponentDrop)
		assert.Equal(t, hostView[i].OpponentDrop, joinerView[i].UserDrop)
		assert.Equal(t, l.Rounds[i].HostDrop, hostView[i].UserDrop)
		assert.Equal(t, hostView[i], spectatorView[i])
	}
	assert.Equal(t, "h1", hostView[0].UserDrop.Name)
	assert.Equal(t, "j1", joinerView[0].UserDrop.Name)
}

func TestHostWins(t *testing.T) {
	t.Parallel()

	round := func(host, joiner string) CanonicalRound {
		return CanonicalRound{HostDrop: Drop{Value: d(host)}, JoinerDrop: Drop{Value: d(joiner)}}
	}

	tests := []struct {
		name     string
		rounds   []CanonicalRound
		expected bool
	}{
		{name: "host ahead", rounds: []CanonicalRound{round("70", "60"), round("50", "40")}, expected: true},
		{name: "joiner ahead", rounds: []CanonicalRound{round("1", "2")}, expected: false},
		{name: "tie goes to host", rounds: []CanonicalRound{round("5.5", "2"), round("0", "3.5")}, expected: true},
		{name: "no rounds", rounds: nil, expected: true},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, HostWins(tt.rounds))
		})
	}
}
