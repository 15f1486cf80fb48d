package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/services/ingest/internal/providers"
	"github.com/liveview-io/liveview/shared/types"
)

type fakeConnector struct {
	name     types.ProviderName
	sports   map[types.Sport]bool
}

func (f *fakeConnector) Name() types.ProviderName { return f.name }
func (f *fakeConnector) Supports(sport types.Sport) bool { return f.sports[sport] }
func (f *fakeConnector) FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{}
}
func (f *fakeConnector) FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{}
}
func (f *fakeConnector) FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{}
}
func (f *fakeConnector) FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult {
	return types.ConnectorResult{}
}

var _ providers.Connector = (*fakeConnector)(nil)

func TestNew_CascadeOrderDropsUnknownProviders(t *testing.T) {
	espn := &fakeConnector{name: types.ProviderESPN, sports: map[types.Sport]bool{types.SportSoccer: true}}
	sr := &fakeConnector{name: types.ProviderSportradar, sports: map[types.Sport]bool{types.SportSoccer: true}}

	r := New([]providers.Connector{espn, sr}, []string{"sportradar", "nonexistent", "espn"}, nil, nil, 0.5, time.Minute, 60, nil)

	assert.Equal(t, []types.ProviderName{types.ProviderSportradar, types.ProviderESPN}, r.cascadeOrder)
	assert.Same(t, espn, r.Get(types.ProviderESPN))
	assert.Len(t, r.All(), 2)
}

func TestNew_EmptyOrderYieldsEmptyCascade(t *testing.T) {
	r := New(nil, nil, nil, nil, 0.5, time.Minute, 60, nil)
	assert.Empty(t, r.cascadeOrder)
	assert.Nil(t, r.Get(types.ProviderESPN))
}
