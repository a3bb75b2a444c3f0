package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotentWhileActive(t *testing.T) {
	s := NewStore()

	_, added, err := s.Add("deals", "deal1", "qualified", "user1", nil)
	require.NoError(t, err)
	assert.True(t, added)

	_, added, err = s.Add("deals", "deal1", "qualified", "user2", nil)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Len(t, s.Tags("deals", "deal1", true), 1)
}

func TestRemoveNonActiveIsNoOp(t *testing.T) {
	s := NewStore()

	removed := s.Remove("deals", "deal1", "qualified", "user1")
	assert.False(t, removed)
	assert.Empty(t, s.Tags("deals", "deal1", true))
}

func TestRemoveThenReaddPreservesHistory(t *testing.T) {
	s := NewStore()

	_, _, err := s.Add("deals", "deal1", "qualified", "user1", nil)
	require.NoError(t, err)
	assert.True(t, s.Remove("deals", "deal1", "qualified", "user1"))
	assert.False(t, s.HasTag("deals", "deal1", "qualified"))

	_, added, err := s.Add("deals", "deal1", "qualified", "user1", nil)
	require.NoError(t, err)
	assert.True(t, added)

	assert.True(t, s.HasTag("deals", "deal1", "qualified"))
	assert.Len(t, s.Tags("deals", "deal1", true), 2, "removed record and re-added record both kept")
	assert.Len(t, s.Tags("deals", "deal1", false), 1, "only the active one surfaces by default")
}

func TestInvalidTagNameRejected(t *testing.T) {
	s := NewStore()
	_, _, err := s.Add("deals", "deal1", "High Priority", "user1", nil)
	assert.ErrorIs(t, err, ErrInvalidTagName)
}

func TestHasAnyAndAllTags(t *testing.T) {
	s := NewStore()
	_, _, _ = s.Add("deals", "deal1", "qualified", "user1", nil)
	_, _, _ = s.Add("deals", "deal1", "priority", "user1", nil)

	assert.True(t, s.HasAnyTag("deals", "deal1", []string{"priority", "lead"}))
	assert.False(t, s.HasAnyTag("deals", "deal1", []string{"lead"}))
	assert.True(t, s.HasAllTags("deals", "deal1", []string{"qualified", "priority"}))
	assert.False(t, s.HasAllTags("deals", "deal1", []string{"qualified", "lead"}))
}

func TestObjectsWithTag(t *testing.T) {
	s := NewStore()
	_, _, _ = s.Add("deals", "deal1", "qualified", "user1", nil)
	_, _, _ = s.Add("deals", "deal2", "qualified", "user1", nil)
	_, _, _ = s.Add("contatos", "c1", "qualified", "user1", nil)
	s.Remove("deals", "deal2", "qualified", "user1")

	objs := s.ObjectsWithTag("deals", "qualified")
	assert.ElementsMatch(t, []string{"deal1"}, objs)
}

func TestTransition(t *testing.T) {
	s := NewStore()
	_, _, err := s.Add("deals", "deal1", "qualified", "user1", nil)
	require.NoError(t, err)

	r, err := s.Transition("deals", "deal1", "qualified", "proposal", "user1", map[string]interface{}{"note": "sent"})
	require.NoError(t, err)
	assert.Equal(t, "proposal", r.Tag)
	assert.False(t, s.HasTag("deals", "deal1", "qualified"))
	assert.True(t, s.HasTag("deals", "deal1", "proposal"))
}

func TestTransitionFromNonActiveTagStillAddsTarget(t *testing.T) {
	s := NewStore()
	r, err := s.Transition("deals", "deal1", "lead", "qualified", "ai_agent", nil)
	require.NoError(t, err)
	assert.Equal(t, "qualified", r.Tag)
	assert.True(t, s.HasTag("deals", "deal1", "qualified"))
}

func TestRemoveAll(t *testing.T) {
	s := NewStore()
	_, _, _ = s.Add("deals", "deal1", "qualified", "user1", nil)
	_, _, _ = s.Add("deals", "deal1", "priority", "user1", nil)

	count := s.RemoveAll("deals", "deal1", "user1")
	assert.Equal(t, 2, count)
	assert.Empty(t, s.Tags("deals", "deal1", false))
	assert.Len(t, s.Tags("deals", "deal1", true), 2)
}
