package localstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskchat/pkg/models"
)

func openTempStore(t *testing.T) {
	t.Helper()
	require.NoError(t, Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, Close()) })
}

func TestChatOpenRoundTrip(t *testing.T) {
	openTempStore(t)

	assert.False(t, ChatOpen(7))
	SetChatOpen(7, true)
	assert.True(t, ChatOpen(7))
	// per-ticket: other tickets stay closed
	assert.False(t, ChatOpen(8))

	SetChatOpen(7, false)
	assert.False(t, ChatOpen(7))
}

func TestClearChatState(t *testing.T) {
	openTempStore(t)

	SetChatOpen(1, true)
	SetChatOpen(2, true)
	require.NoError(t, ClearChatState())
	assert.False(t, ChatOpen(1))
	assert.False(t, ChatOpen(2))
}

func TestSessionCache(t *testing.T) {
	openTempStore(t)

	var out models.User
	ok, err := Session(&out)
	require.NoError(t, err)
	assert.False(t, ok)

	viewer := models.User{ID: 3, Name: "Dana", Role: models.RoleAdmin}
	require.NoError(t, SetSession(viewer))
	ok, err = Session(&out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, viewer, out)

	require.NoError(t, ClearSession())
	ok, err = Session(&out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnopenedStoreIsInert(t *testing.T) {
	// reads and writes before Open must not panic
	assert.False(t, Ready())
	SetChatOpen(1, true)
	assert.False(t, ChatOpen(1))
	require.NoError(t, ClearChatState())
	require.NoError(t, ClearSession())
}

func TestHandleAdapter(t *testing.T) {
	openTempStore(t)

	var h Handle
	h.SetChatOpen(9, true)
	assert.True(t, h.ChatOpen(9))
}
