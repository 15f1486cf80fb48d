package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/services/ingest/internal/providers"
)

func TestConnectors_OrdersSportradarFirst(t *testing.T) {
	var espn, sportradar, footballData, tsdb providers.Connector
	espn = providers.NewESPNConnector("", 0, nil)
	sportradar = providers.NewSportradarConnector("", 0, nil)
	footballData = providers.NewFootballDataConnector("", 0, nil)
	tsdb = providers.NewTheSportsDBConnector("", 0, nil)

	conns := Connectors(espn, sportradar, footballData, tsdb)

	assert.Equal(t, []providers.Connector{sportradar, espn, footballData, tsdb}, conns)
}

func TestNew_SemaphoreCapacityMatchesConcurrency(t *testing.T) {
	d := New(nil, nil, nil, nil, 4, 60)
	assert.Equal(t, 4, cap(d.sem))
}
