package chat

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReadAPI struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeReadAPI) MarkMessagesRead(ctx context.Context, ticketID int64) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return fmt.Errorf("boom")
	}
	return nil
}

func waitCalls(t *testing.T, api *fakeReadAPI, want int64) {
	t.Helper()
	require.Eventually(t, func() bool { return api.calls.Load() == want },
		time.Second, 5*time.Millisecond)
}

func TestOpenWithUnreadMarksRead(t *testing.T) {
	api := &fakeReadAPI{}
	s := NewStore()
	s.Append(msg(1, customer, "help"))
	tr := NewReadTracker(7, agent.ID, api, s)

	tr.Open()

	assert.False(t, s.HasUnreadFrom(agent.ID))
	waitCalls(t, api, 1)
}

func TestOpenWithoutUnreadSendsNothing(t *testing.T) {
	api := &fakeReadAPI{}
	s := NewStore()
	read := msg(1, customer, "old")
	read.Read = true
	s.Append(read)
	tr := NewReadTracker(7, agent.ID, api, s)

	tr.Open()
	tr.Close()
	tr.Open()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), api.calls.Load())
}

func TestReceiveWhileOpenMarksReadImmediately(t *testing.T) {
	api := &fakeReadAPI{}
	s := NewStore()
	tr := NewReadTracker(7, agent.ID, api, s)
	tr.Open()

	incoming := msg(2, customer, "are you there?")
	s.Append(incoming)
	tr.OnMessage(incoming)

	assert.False(t, s.HasUnreadFrom(agent.ID))
	waitCalls(t, api, 1)
}

func TestReceiveWhileClosedOnlyCounts(t *testing.T) {
	api := &fakeReadAPI{}
	s := NewStore()
	tr := NewReadTracker(7, agent.ID, api, s)

	for i := int64(1); i <= 3; i++ {
		m := msg(i, customer, "ping")
		s.Append(m)
		tr.OnMessage(m)
	}

	assert.Equal(t, 3, tr.Unread())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), api.calls.Load())

	// opening later reconciles with a single call
	tr.Open()
	assert.Equal(t, 0, tr.Unread())
	waitCalls(t, api, 1)
}

func TestOwnMessagesNeverMarkRead(t *testing.T) {
	api := &fakeReadAPI{}
	s := NewStore()
	tr := NewReadTracker(7, agent.ID, api, s)
	tr.Open()

	mine := msg(5, agent, "typing...")
	mine.Read = true
	s.Append(mine)
	tr.OnMessage(mine)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), api.calls.Load())
}

func TestMarkReadFailureIsNotRetried(t *testing.T) {
	api := &fakeReadAPI{}
	api.fail.Store(true)
	s := NewStore()
	s.Append(msg(1, customer, "hi"))
	tr := NewReadTracker(7, agent.ID, api, s)

	tr.Open()
	waitCalls(t, api, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), api.calls.Load())

	// local state was still flipped; the conversation renders read
	assert.False(t, s.HasUnreadFrom(agent.ID))
}
