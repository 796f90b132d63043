package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/sender"
)

func okReport(n int) *sender.Report {
	rep := &sender.Report{TraceID: "t-1", Rounds: 1, Elapsed: 1234 * time.Millisecond}
	for i := 0; i < n; i++ {
		rep.Outcomes = append(rep.Outcomes, sender.Outcome{Index: i, State: sender.Confirmed, Signature: payload.Signature{byte(i + 1)}, Attempts: 1})
	}
	return rep
}

func TestWrite_Success(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, okReport(3)))
	require.Equal(t, "Took 1234ms\n", buf.String())
	require.Zero(t, ExitCode(okReport(3), nil))
}

func TestWrite_EmptyBatchSucceeds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &sender.Report{Elapsed: time.Millisecond}))
	require.Equal(t, "Took 1ms\n", buf.String())
}

func TestWrite_Failures(t *testing.T) {
	rep := okReport(4)
	rep.Outcomes[1].State = sender.Failed
	rep.Outcomes[1].Reason = fmt.Errorf("%w: after 5 rounds", sender.ErrRetriesExhausted)
	rep.Outcomes[3].State = sender.Failed
	rep.Outcomes[3].Signature = payload.Signature{}
	rep.Outcomes[3].Reason = &payload.SigningError{Err: errors.New("locked")}

	var buf bytes.Buffer
	err := Write(&buf, rep)
	require.EqualError(t, err, "2 write transactions failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "payload 1 ("+rep.Outcomes[1].Signature.String()+"): "))
	require.Contains(t, lines[0], "exhausted retries")
	require.True(t, strings.HasPrefix(lines[1], "payload 3: signing error"))

	require.ErrorIs(t, err, sender.ErrRetriesExhausted)
	var se *payload.SigningError
	require.ErrorAs(t, err, &se)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	require.Equal(t, 2, be.Count)
	require.Equal(t, []int{1, 3}, []int{be.Failures[0].Index, be.Failures[1].Index})
	require.Equal(t, 1, ExitCode(rep, nil))
}

func TestExitCode_FatalRun(t *testing.T) {
	require.Equal(t, 1, ExitCode(okReport(1), sender.ErrTransportUnavailable))
	require.Equal(t, 1, ExitCode(nil, sender.ErrTokenUnavailable))
	require.Nil(t, Aggregate(nil))
}

func TestSummarize(t *testing.T) {
	rep := okReport(3)
	rep.Rounds = 2
	rep.Outcomes[2].State = sender.Failed
	rep.Outcomes[2].Attempts = 2
	rep.Outcomes[2].Reason = sender.ErrProtocolRejected

	s := Summarize(rep, nil)
	require.Equal(t, "t-1", s.TraceID)
	require.Equal(t, 3, s.Total)
	require.Equal(t, 2, s.Confirmed)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, 2, s.Rounds)
	require.Equal(t, int64(1234), s.ElapsedMs)
	require.Empty(t, s.Error)
	require.Equal(t, FailureRecord{Index: 2, State: "failed", Signature: rep.Outcomes[2].Signature.String(), Attempts: 2, Reason: sender.ErrProtocolRejected.Error()}, s.Failures[0])

	s = Summarize(nil, sender.ErrTransportUnavailable)
	require.Equal(t, sender.ErrTransportUnavailable.Error(), s.Error)
	require.Zero(t, s.Total)
}
