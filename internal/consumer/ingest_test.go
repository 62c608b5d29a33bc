package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/events"
	"github.com/Bhavikpatel576/timely/internal/persistence/memory"
)

func captureMessage(t *testing.T, payload any) Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{
		Topic:     "activity_captured",
		Partition: 2,
		Offset:    7,
		EventType: events.ActivityCapturedType,
		DeviceID:  "desk",
		Payload:   raw,
	}
}

func TestIngestHandlerStoresOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := domain.NewService(store)
	handler := NewIngestHandler(svc)

	app := "Code"
	url := "https://www.GitHub.com/org/repo"
	msg := captureMessage(t, []events.ActivityCaptured{
		{Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), App: &app, URL: &url, Duration: 120},
		{EventID: "evt-2", DeviceID: "laptop", Timestamp: time.Date(2026, 3, 2, 9, 2, 0, 0, time.UTC), App: &app, Duration: 30},
	})

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	latest, err := store.LatestEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "evt-2", latest.SourceEventID)
	require.Equal(t, "laptop", latest.DeviceID)

	page, err := store.Timeline(ctx, svc.Period("2026-03-02", "2026-03-02"), nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "activity_captured/2/7/0", page[0].SourceEventID)
	require.Equal(t, "desk", page[0].DeviceID)
	require.NotNil(t, page[0].URLDomain)
	require.Equal(t, "github.com", *page[0].URLDomain)
}

func TestIngestHandlerRejectsBadInput(t *testing.T) {
	handler := NewIngestHandler(domain.NewService(memory.NewStore()))
	ctx := context.Background()

	var permanent *PermanentError

	err := handler.Handle(ctx, Message{EventType: "something.else", Payload: json.RawMessage(`{}`)})
	require.ErrorAs(t, err, &permanent)

	err = handler.Handle(ctx, Message{EventType: events.ActivityCapturedType, Payload: json.RawMessage(`{"duration":"long"}`)})
	require.ErrorAs(t, err, &permanent)

	// missing timestamp fails domain validation
	err = handler.Handle(ctx, captureMessage(t, events.ActivityCaptured{Duration: 5}))
	require.ErrorAs(t, err, &permanent)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestHandlerPassesTransientErrorsThrough(t *testing.T) {
	boom := errors.New("connection reset")
	handler := NewIngestHandler(recorderFunc(func(context.Context, []domain.Event) (int64, error) {
		return 0, boom
	}))
	err := handler.Handle(context.Background(), captureMessage(t, events.ActivityCaptured{Timestamp: time.Now(), Duration: 1}))
	require.ErrorIs(t, err, boom)
	var permanent *PermanentError
	require.False(t, errors.As(err, &permanent))
}

type recorderFunc func(context.Context, []domain.Event) (int64, error)

func (f recorderFunc) RecordEvents(ctx context.Context, events []domain.Event) (int64, error) {
	return f(ctx, events)
}
