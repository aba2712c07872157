package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoredSetOnce(t *testing.T) {
	s := NewState(nil)
	_, ok := s.Monitored()
	assert.False(t, ok)

	require.NoError(t, s.SetMonitored("T1", "S1"))
	assert.ErrorIs(t, s.SetMonitored("T2", "S2"), ErrAlreadySet)

	id, ok := s.Monitored()
	assert.True(t, ok)
	assert.EqualValues(t, "S1", id)
	assert.EqualValues(t, "T1", s.Target())
}

func TestAccepts(t *testing.T) {
	s := NewState(nil)
	assert.True(t, s.Accepts(""))
	assert.False(t, s.Accepts("S1"), "no session is monitored yet")

	require.NoError(t, s.SetMonitored("T1", "S1"))
	assert.True(t, s.Accepts("S1"))
	assert.True(t, s.Accepts(""))
	assert.False(t, s.Accepts("other"))
}

func TestUserAgentFirstWins(t *testing.T) {
	s := NewState(nil)
	s.SetUserAgent("")
	s.SetUserAgent("UA/1")
	s.SetUserAgent("UA/2")
	assert.Equal(t, "UA/1", s.UserAgent())
}
