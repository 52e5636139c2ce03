package handler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopSender struct{ closed atomic.Bool }

func (s *nopSender) Send(msg protocol.ServerMessage) error { return nil }
func (s *nopSender) Close() error {
	s.closed.Store(true)
	return nil
}

func TestRegistry_CreateRemove(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := NewRegistry(m, zap.NewNop())

	a, err := r.Create(context.Background(), &protocol.SessionOption{Sender: &nopSender{}, ID: "u1_100", UserID: "u1"})
	require.NoError(t, err)
	b, err := r.Create(context.Background(), &protocol.SessionOption{Sender: &nopSender{}, ID: "u1_100", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1_100", a.ID())
	assert.Equal(t, "u1_100_2", b.ID())
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"u1_100", "u1_100_2"}, r.IDs())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))

	got, ok := r.Get("u1_100_2")
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, r.Remove("u1_100"))
	assert.False(t, r.Remove("u1_100"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))

	_, err = r.Create(context.Background(), &protocol.SessionOption{ID: "x"})
	assert.Error(t, err)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil, zap.NewNop())
	senders := []*nopSender{{}, {}, {}}
	for i, s := range senders {
		_, err := r.Create(context.Background(), &protocol.SessionOption{
			Sender: s, ID: "u_" + string(rune('a'+i)), UserID: "u",
		})
		require.NoError(t, err)
	}

	require.NoError(t, r.CloseAll(context.Background()))
	for _, s := range senders {
		assert.True(t, s.closed.Load())
	}

	_, err := r.Create(context.Background(), &protocol.SessionOption{Sender: &nopSender{}, ID: "late", UserID: "u"})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_Reporter(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := NewRegistry(m, zap.NewNop())
	_, err := r.Create(context.Background(), &protocol.SessionOption{Sender: &nopSender{}, ID: "s1", UserID: "u"})
	require.NoError(t, err)
	m.SetActiveSessions(0)

	r.report()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))

	assert.Error(t, r.StartReporter("not a schedule"))
	require.NoError(t, r.StartReporter(""))
	r.StopReporter()
	r.StopReporter()
}
