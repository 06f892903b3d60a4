package cases

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/case-battles/internal/common"
)

type memStore map[string]*Case

func (m memStore) Get(_ context.Context, id string) (*Case, error) {
	c, ok := m[id]
	if !ok {
		return nil, common.NotFound("кейс %s не найден", id)
	}
	return c, nil
}

func (m memStore) GetMany(ctx context.Context, ids []string) ([]*Case, error) {
	out := make([]*Case, 0, len(ids))
	for _, id := range ids {
		c, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m memStore) Drops(context.Context, string) ([]Drop, error) {
	return nil, nil
}

func TestService_Openable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	store := memStore{
		"c1":  {ID: "c1", IsActive: true, PriceUSDT: decimal.NewFromInt(10)},
		"c2":  {ID: "c2", IsActive: true, PriceUSDT: decimal.NewFromInt(5)},
		"old": {ID: "old", IsActive: true, ExpiresAt: &expired},
		"off": {ID: "off", IsActive: false},
	}
	s := NewService(store)
	s.now = func() time.Time { return now }

	tests := []struct {
		name        string
		ids         []string
		expectedErr error
	}{
		{name: "ordered", ids: []string{"c2", "c1"}},
		{name: "empty id", ids: []string{"c1", ""}, expectedErr: common.ErrValidation},
		{name: "unknown", ids: []string{"c1", "nope"}, expectedErr: common.ErrNotFound},
		{name: "expired", ids: []string{"old"}, expectedErr: common.ErrValidation},
		{name: "inactive", ids: []string{"off"}, expectedErr: common.ErrValidation},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			list, err := s.OpenableMany(t.Context(), tt.ids)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, list, len(tt.ids))
			for i, id := range tt.ids {
				assert.Equal(t, id, list[i].ID)
			}
		})
	}

	t.Run("single", func(t *testing.T) {
		t.Parallel()

		_, err := s.Openable(t.Context(), "off")
		assert.ErrorIs(t, err, common.ErrValidation)

		c, err := s.Get(t.Context(), "off")
		require.NoError(t, err)
		assert.Equal(t, "off", c.ID)

		_, err = s.Get(t.Context(), "")
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}
