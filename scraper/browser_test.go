package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/retry"
)

func TestLauncher_ClosedNeverLaunches(t *testing.T) {
	l := NewLauncher(config.BrowserConfig{Headless: true})
	l.Close()

	sess, err := l.NewSession(context.Background())
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, models.KindFatal, retry.Classify(err))
	assert.Nil(t, l.browser)

	l.Close()
}
