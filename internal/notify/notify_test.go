package notify

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/case-battles/internal/config"
)

type fakeSender struct {
	sent []*telego.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

func TestTelegramNotifier_Notify(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, -100500)

	require.NoError(t, n.Notify(t.Context(), "отчёт"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "отчёт", sender.sent[0].Text)
	assert.Equal(t, tuID(-100500), sender.sent[0].ChatID)
}

func TestTelegramNotifier_SendError(t *testing.T) {
	t.Parallel()

	n := NewTelegramNotifier(&fakeSender{err: assert.AnError}, 1)

	err := n.Notify(t.Context(), "x")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNew_FallsBackToLog(t *testing.T) {
	t.Parallel()

	n, err := New(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, LogNotifier{}, n)
	assert.NoError(t, n.Notify(t.Context(), "x"))
}

func tuID(id int64) telego.ChatID {
	return telego.ChatID{ID: id}
}
