package block

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	next := &BlockTrip{Trips: []string{"next"}, FirstArrives: 200, LastDeparts: 400}
	withNext := Layover{Start: 0, End: 100, Next: next}
	last := Layover{Start: 0, End: 100}

	tests := []struct {
		name       string
		skipWindow int
		layover    Layover
		vehicleNow int
		want       State
	}{
		{"mid trip", 0, withNext, 50, InTransit},
		{"layover starts at trip end", 0, withNext, 100, OnLayover},
		{"waiting for next trip", 0, withNext, 150, OnLayover},
		{"next trip started", 0, withNext, 250, NextTripStarting},
		{"at next start with no skip window", 0, withNext, 200, LayoverSkipRisk},
		{"inside skip window", 300, withNext, 250, LayoverSkipRisk},
		{"skip window end is inclusive", 300, withNext, 500, LayoverSkipRisk},
		{"past skip window", 300, withNext, 501, NextTripStarting},
		{"final trip in progress", 0, last, 100, FinalTrip},
		{"final trip finished", 0, last, 101, EndedReturningToFacility},
		{"back to back trips", 0, Layover{End: 200, Next: next}, 200, NextTripStarting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolver{SkipWindow: tt.skipWindow}
			assert.Equal(t, tt.want, r.State(tt.layover, tt.vehicleNow))
		})
	}
}

func TestNextTrip(t *testing.T) {
	b := testBlock()

	next, ok := NextTrip(b, BlockTrip{Trips: []string{"A"}})
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, next.Trips)

	_, ok = NextTrip(b, BlockTrip{Trips: []string{"C"}})
	assert.False(t, ok)
	_, ok = NextTrip(b, BlockTrip{Trips: []string{"Z"}})
	assert.False(t, ok)
}

func TestAdvise(t *testing.T) {
	r := DefaultResolver()
	b := &Block{ID: "B1", Trips: []BlockTrip{
		{Trips: []string{"A"}, FirstArrives: 28800, LastDeparts: 30000},
		{Trips: []string{"B"}, FirstArrives: 30600, LastDeparts: 32400},
	}}

	t.Run("layover between trips", func(t *testing.T) {
		adv, ok := r.Advise(b, 0, 30300)
		require.True(t, ok)
		assert.Equal(t, []string{"A"}, adv.Trip.Trips)
		assert.Equal(t, 30300, adv.VehicleNow)
		assert.Equal(t, OnLayover, adv.State)
		require.NotNil(t, adv.Layover.Next)
		assert.Equal(t, 30600, adv.Layover.Next.FirstArrives)
	})

	t.Run("last trip of the block", func(t *testing.T) {
		adv, ok := r.Advise(b, 0, 31000)
		require.True(t, ok)
		assert.Equal(t, []string{"B"}, adv.Trip.Trips)
		assert.Nil(t, adv.Layover.Next)
		assert.Equal(t, FinalTrip, adv.State)
	})

	t.Run("block done", func(t *testing.T) {
		adv, ok := r.Advise(b, 0, 40000)
		require.True(t, ok)
		assert.Equal(t, EndedReturningToFacility, adv.State)
	})

	t.Run("empty block", func(t *testing.T) {
		_, ok := r.Advise(&Block{}, 0, 1)
		assert.False(t, ok)
	})
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]State{"s": LayoverSkipRisk})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"layover_skip_risk"}`, string(data))
	assert.Equal(t, "State(42)", State(42).String())
}
