package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain(t *testing.T) {
	assert.Equal(t, "site.api.espn.com", Domain("https://site.api.espn.com/apis/site/v2/sports/soccer/eng.1/scoreboard"))
	assert.Equal(t, "unknown", Domain("::not a url::"))
}

func TestAllow_RespectsBurstThenDenies(t *testing.T) {
	d := New(60, 2, time.Minute)
	url := "https://example.com/a"

	assert.True(t, d.Allow(url))
	assert.True(t, d.Allow(url))
	assert.False(t, d.Allow(url))
}

func TestAllow_SeparateDomainsHaveSeparateBuckets(t *testing.T) {
	d := New(60, 1, time.Minute)

	assert.True(t, d.Allow("https://a.example.com/x"))
	assert.True(t, d.Allow("https://b.example.com/x"))
}

func TestRecord429_BlocksSubsequentAllow(t *testing.T) {
	d := New(600, 5, 50*time.Millisecond)
	url := "https://example.com/a"

	require.True(t, d.Allow(url))
	d.Record429(url, 0)
	assert.False(t, d.Allow(url))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, d.Allow(url))
}

func TestWaitForSlot_TimesOutWhenBackingOff(t *testing.T) {
	d := New(600, 5, time.Hour)
	url := "https://example.com/a"
	d.Record429(url, time.Hour)

	ctx := context.Background()
	err := d.WaitForSlot(ctx, url, 30*time.Millisecond)
	assert.Error(t, err)
}
