package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 60*time.Second, opts.NavigationTimeout)
	assert.Equal(t, 15*time.Second, opts.SelectorTimeout)
	assert.Equal(t, 5, opts.ScrollSteps)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Len(t, opts.UserAgents, 3)
}

func TestPickUserAgent(t *testing.T) {
	assert.Equal(t, "", pickUserAgent(nil))
	assert.Equal(t, "only", pickUserAgent([]string{"only"}))

	agents := DefaultUserAgents()
	for i := 0; i < 20; i++ {
		assert.Contains(t, agents, pickUserAgent(agents))
	}
}

func TestPause(t *testing.T) {
	assert.Equal(t, time.Second, pause(time.Second, time.Second))
	for i := 0; i < 20; i++ {
		d := pause(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}
