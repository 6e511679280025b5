package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTestingConfigTimeoutCeilings(t *testing.T) {
	cfg := NewForTesting()
	assert.Equal(t, 30*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, 4*time.Minute, cfg.DownloadTimeout)
	// a download must be able to fail on its own before the job ceiling hits
	assert.Less(t, cfg.DownloadTimeout, cfg.JobTimeout)
}
