package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialRunsNestedPushesAfterCurrent(t *testing.T) {
	var s serial
	var got []string

	inner := func() { got = append(got, "inner") }
	outer := func() {
		got = append(got, "outer start")
		assert.False(t, s.push([]func(){inner}), "a running queue is drained by its owner")
		got = append(got, "outer end")
	}

	require.True(t, s.push([]func(){outer, func() { got = append(got, "second") }}))
	s.run()
	assert.Equal(t, []string{"outer start", "outer end", "second", "inner"}, got)

	assert.False(t, s.push(nil), "nothing to run")
	require.True(t, s.push([]func(){inner}), "idle again after draining")
	s.run()
}

func TestSerialRecoversAfterPanic(t *testing.T) {
	var s serial
	require.True(t, s.push([]func(){func() { panic("boom") }}))
	assert.Panics(t, s.run)

	ran := false
	require.True(t, s.push([]func(){func() { ran = true }}))
	s.run()
	assert.True(t, ran)
}
