package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideway/pkg/exception"
	"rideway/pkg/realtime"
	"rideway/pkg/realtime/realtimetest"
)

func newClient(t *testing.T) (*realtime.Client, *realtimetest.Dialer, *realtimetest.Clock) {
	t.Helper()
	clock := realtimetest.NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	dialer := realtimetest.NewDialer()
	cfg := realtime.DefaultConfig(dialer)
	cfg.Scheduler = clock
	client, err := realtime.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, dialer, clock
}

func TestAdapterReemitsLifecycleTypes(t *testing.T) {
	client, dialer, _ := newClient(t)
	adapter, err := New(client)
	require.NoError(t, err)
	defer adapter.Close()

	var updates []Update
	adapter.OnUpdate(func(u Update) { updates = append(updates, u) })

	require.NoError(t, client.Connect(t.Context(), "rider-1", "token"))
	conn := dialer.Last()

	for _, mt := range realtime.BookingTypes {
		msg, err := realtime.NewMessage(time.UnixMilli(1000), mt, map[string]string{"bookingId": "b-42"}, realtime.SendOptions{})
		require.NoError(t, err)
		require.NoError(t, conn.DeliverMessage(msg))
	}
	chat, err := realtime.NewMessage(time.UnixMilli(1000), realtime.TypeChatMessage, nil, realtime.SendOptions{})
	require.NoError(t, err)
	require.NoError(t, conn.DeliverMessage(chat))

	require.Len(t, updates, len(realtime.BookingTypes))
	for i, u := range updates {
		assert.Equal(t, realtime.BookingTypes[i], u.Type)
		assert.Equal(t, "b-42", u.BookingID())
		assert.Equal(t, int64(1000), u.Timestamp)
		assert.NotEmpty(t, u.MessageID)
	}
}

func TestSubscribeToBookingJoinsRoom(t *testing.T) {
	client, dialer, _ := newClient(t)
	adapter, err := New(client)
	require.NoError(t, err)

	require.NoError(t, client.Connect(t.Context(), "rider-1", "token"))
	conn := dialer.Last()

	require.ErrorIs(t, adapter.SubscribeToBooking(""), exception.ErrBookingEmptyID)
	require.NoError(t, adapter.SubscribeToBooking("b-7"))
	require.NoError(t, adapter.UnsubscribeFromBooking("b-7"))

	joins := conn.WrittenOfType(realtime.TypeUserJoined)
	require.Len(t, joins, 1)
	var room realtime.RoomPayload
	require.NoError(t, joins[0].Decode(&room))
	assert.Equal(t, "booking_b-7", room.RoomID)

	leaves := conn.WrittenOfType(realtime.TypeUserLeft)
	require.Len(t, leaves, 1)
	require.NoError(t, leaves[0].Decode(&room))
	assert.Equal(t, "booking_b-7", room.RoomID)
	assert.Empty(t, adapter.Rooms())
}

func TestRoomsAreRejoinedAfterReconnect(t *testing.T) {
	client, dialer, clock := newClient(t)
	adapter, err := New(client)
	require.NoError(t, err)

	require.NoError(t, client.Connect(t.Context(), "rider-1", "token"))
	require.NoError(t, adapter.SubscribeToBooking("b-1"))

	first := dialer.Last()
	require.NoError(t, first.Drop(realtime.CloseAbnormal, "lost"))
	clock.Advance(time.Second)

	second := dialer.Last()
	require.NotSame(t, first, second)
	joins := second.WrittenOfType(realtime.TypeUserJoined)
	require.Len(t, joins, 1)
	var room realtime.RoomPayload
	require.NoError(t, joins[0].Decode(&room))
	assert.Equal(t, RoomID("b-1"), room.RoomID)
}

func TestSendBookingMessage(t *testing.T) {
	client, dialer, _ := newClient(t)
	adapter, err := New(client)
	require.NoError(t, err)
	require.NoError(t, client.Connect(t.Context(), "driver-1", "token"))

	require.ErrorIs(t, adapter.Send(realtime.TypeChatMessage, "b-1", nil), exception.ErrBookingUnknownType)
	require.NoError(t, adapter.Send(realtime.TypeBookingStarted, "b-1", map[string]any{"eta": 4}))

	sent := dialer.Last().WrittenOfType(realtime.TypeBookingStarted)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].RequiresAck)
	assert.JSONEq(t, `{"bookingId":"b-1","roomId":"booking_b-1","eta":4}`, string(sent[0].Data))
}

func TestUpdateBookingIDMissing(t *testing.T) {
	assert.Empty(t, Update{}.BookingID())
	assert.Empty(t, Update{Data: []byte(`[1,2]`)}.BookingID())
}

func TestRoomsRejoinedWhenAdapterBuiltAfterConnect(t *testing.T) {
	client, dialer, clock := newClient(t)
	require.NoError(t, client.Connect(t.Context(), "rider-1", "token"))

	adapter, err := New(client)
	require.NoError(t, err)
	defer adapter.Close()
	require.NoError(t, adapter.SubscribeToBooking("b-1"))

	first := dialer.Last()
	require.Len(t, first.WrittenOfType(realtime.TypeUserJoined), 1)
	require.NoError(t, first.Drop(realtime.CloseAbnormal, "lost"))
	clock.Advance(time.Second)

	second := dialer.Last()
	require.NotSame(t, first, second)
	joins := second.WrittenOfType(realtime.TypeUserJoined)
	require.Len(t, joins, 1)
	var room realtime.RoomPayload
	require.NoError(t, joins[0].Decode(&room))
	assert.Equal(t, RoomID("b-1"), room.RoomID)
}

func TestOfflineSubscribeJoinsOnce(t *testing.T) {
	client, dialer, clock := newClient(t)
	adapter, err := New(client)
	require.NoError(t, err)
	defer adapter.Close()

	require.NoError(t, client.Connect(t.Context(), "rider-1", "token"))
	first := dialer.Last()
	require.NoError(t, first.Drop(realtime.CloseAbnormal, "lost"))

	require.NoError(t, adapter.SubscribeToBooking("b-2"))
	assert.Empty(t, first.WrittenOfType(realtime.TypeUserJoined))

	clock.Advance(time.Second)
	clock.Advance(time.Second)

	second := dialer.Last()
	require.NotSame(t, first, second)
	joins := second.WrittenOfType(realtime.TypeUserJoined)
	require.Len(t, joins, 1)
	var room realtime.RoomPayload
	require.NoError(t, joins[0].Decode(&room))
	assert.Equal(t, RoomID("b-2"), room.RoomID)
}

func TestUpdateBookingID(t *testing.T) {
	u := Update{Data: []byte(`{"bookingId":"b-9","eta":3}`)}
	assert.Equal(t, "b-9", u.BookingID())
}
