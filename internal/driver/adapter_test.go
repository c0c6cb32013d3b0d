package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideway/pkg/exception"
	"rideway/pkg/realtime"
	"rideway/pkg/realtime/realtimetest"
)

var start = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

type fixture struct {
	client *realtime.Client
	dialer *realtimetest.Dialer
	clock  *realtimetest.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  realtimetest.NewClock(start),
		dialer: realtimetest.NewDialer(),
	}
	cfg := realtime.DefaultConfig(f.dialer)
	cfg.Scheduler = f.clock
	client, err := realtime.NewClient(cfg)
	require.NoError(t, err)
	f.client = client
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Connect(t.Context(), "driver-9", "token"))
	return f
}

func TestSpeedKMH(t *testing.T) {
	assert.InDelta(t, 36.0, SpeedKMH(10), 1e-9)
	assert.InDelta(t, 0.0, SpeedKMH(0), 1e-9)
}

func TestLocationTracking(t *testing.T) {
	f := newFixture(t)
	samples := 0
	src := LocationSourceFunc(func(ctx context.Context) (Location, error) {
		samples++
		if samples == 2 {
			return Location{}, errors.New("gps unavailable")
		}
		return Location{Latitude: 10.77, Longitude: 106.70, Heading: ptr(90), Speed: ptr(10)}, nil
	})
	adapter, err := New(f.client, Config{Source: src, Scheduler: f.clock})
	require.NoError(t, err)
	defer adapter.Close()

	require.ErrorIs(t, adapter.StartLocationTracking(0), exception.ErrInvalidArgument)
	require.NoError(t, adapter.StartLocationTracking(5*time.Second))
	assert.True(t, adapter.Tracking())

	conn := f.dialer.Last()
	f.clock.Advance(4 * time.Second)
	assert.Empty(t, conn.WrittenOfType(realtime.TypeDriverLocation))

	f.clock.Advance(time.Second)
	f.clock.Advance(5 * time.Second)
	f.clock.Advance(5 * time.Second)
	sent := conn.WrittenOfType(realtime.TypeDriverLocation)
	require.Len(t, sent, 2, "a failed sample is skipped")
	assert.Equal(t, 3, samples)

	for _, m := range sent {
		assert.Equal(t, realtime.PriorityHigh, m.Priority)
		assert.False(t, m.RequiresAck)
	}
	var p LocationPayload
	require.NoError(t, sent[0].Decode(&p))
	assert.InDelta(t, 10.77, p.Latitude, 1e-9)
	assert.InDelta(t, 106.70, p.Longitude, 1e-9)
	require.NotNil(t, p.Heading)
	assert.InDelta(t, 90.0, *p.Heading, 1e-9)
	require.NotNil(t, p.Speed)
	assert.InDelta(t, 36.0, *p.Speed, 1e-9)
	assert.Equal(t, start.Add(5*time.Second).UnixMilli(), p.Timestamp)

	adapter.StopLocationTracking()
	assert.False(t, adapter.Tracking())
	f.clock.Advance(time.Minute)
	assert.Len(t, conn.WrittenOfType(realtime.TypeDriverLocation), 2)
}

func TestLocationWithoutOptionalFields(t *testing.T) {
	payload := newLocationPayload(Location{Latitude: 1, Longitude: 2}, 7)
	assert.Nil(t, payload.Heading)
	assert.Nil(t, payload.Speed)
}

func TestStartWithoutSource(t *testing.T) {
	f := newFixture(t)
	adapter, err := New(f.client, Config{Scheduler: f.clock})
	require.NoError(t, err)
	require.ErrorIs(t, adapter.StartLocationTracking(time.Second), exception.ErrDriverNilSource)
}

func TestUpdateDriverStatus(t *testing.T) {
	f := newFixture(t)
	adapter, err := New(f.client, Config{Scheduler: f.clock})
	require.NoError(t, err)

	require.ErrorIs(t, adapter.UpdateDriverStatus("sleeping"), exception.ErrDriverInvalidStatus)
	require.NoError(t, adapter.UpdateDriverStatus(StatusOnTrip))

	sent := f.dialer.Last().WrittenOfType(realtime.TypeDriverStatus)
	require.Len(t, sent, 1)
	assert.Equal(t, realtime.PriorityHigh, sent[0].Priority)
	assert.True(t, sent[0].RequiresAck)
	assert.JSONEq(t, `{"status":"on_trip"}`, string(sent[0].Data))
	assert.Equal(t, 1, f.client.PendingAcks())
}

func TestDriverUpdatesAreReemitted(t *testing.T) {
	f := newFixture(t)
	adapter, err := New(f.client, Config{Scheduler: f.clock})
	require.NoError(t, err)

	var got []realtime.MessageType
	adapter.On(realtime.EventDriverUpdate, func(ev realtime.Event) { got = append(got, ev.Type) })

	conn := f.dialer.Last()
	for _, mt := range []realtime.MessageType{realtime.TypeDriverStatus, realtime.TypeDriverLocation, realtime.TypeDriverMessage} {
		msg, err := realtime.NewMessage(start, mt, nil, realtime.SendOptions{})
		require.NoError(t, err)
		require.NoError(t, conn.DeliverMessage(msg))
	}
	assert.Equal(t, []realtime.MessageType{realtime.TypeDriverStatus, realtime.TypeDriverMessage}, got)
}

func TestArrivedAndChat(t *testing.T) {
	f := newFixture(t)
	adapter, err := New(f.client, Config{Scheduler: f.clock})
	require.NoError(t, err)

	require.NoError(t, adapter.MarkArrived("b-3"))
	require.NoError(t, adapter.SendMessage("b-3", "at the gate"))
	require.ErrorIs(t, adapter.SendMessage("b-3", ""), exception.ErrInvalidArgument)

	conn := f.dialer.Last()
	arrived := conn.WrittenOfType(realtime.TypeDriverArrived)
	require.Len(t, arrived, 1)
	assert.True(t, arrived[0].RequiresAck)
	chat := conn.WrittenOfType(realtime.TypeDriverMessage)
	require.Len(t, chat, 1)
	assert.JSONEq(t, `{"bookingId":"b-3","roomId":"booking_b-3","text":"at the gate"}`, string(chat[0].Data))
}
