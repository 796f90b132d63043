package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zmlAEQ/pingburst/pkg/bus"
	"github.com/zmlAEQ/pingburst/pkg/logger"
)

func TestProgress_LogsRoundsAndTallies(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	b := bus.New(32)
	ctx := context.Background()
	b.Publish(ctx, bus.Event{Kind: bus.KindRound, Round: 1, Body: bus.RoundInfo{Pending: 3, Total: 3}})
	b.Publish(ctx, bus.Event{Kind: bus.KindConfirmed, Round: 1, Index: 0})
	b.Publish(ctx, bus.Event{Kind: bus.KindConfirmed, Round: 1, Index: 2})
	b.Publish(ctx, bus.Event{Kind: bus.KindExpired, Round: 1, Index: 1})
	b.Publish(ctx, bus.Event{Kind: bus.KindRound, Round: 2, Body: bus.RoundInfo{Pending: 1, Confirmed: 2, Total: 3}})
	b.Publish(ctx, bus.Event{Kind: bus.KindFailed, Round: 2, Index: 1})

	p := NewProgress(b)
	require.Equal(t, "progress", p.Name())
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))
	require.Equal(t, 2, p.Rounds())

	require.Equal(t, 2, logs.FilterMessage("progress_round").Len())
	settled := logs.FilterMessage("progress_settled").All()
	require.Len(t, settled, 2)
	first := settled[0].ContextMap()
	require.EqualValues(t, 2, first["confirmed"])
	require.EqualValues(t, 1, first["expired"])
	require.EqualValues(t, 1, first["round"])
	last := settled[1].ContextMap()
	require.EqualValues(t, 1, last["failed"])
	require.EqualValues(t, 0, last["confirmed"])
}
