package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/events"
)

// Recorder stores captured events.
type Recorder interface {
	RecordEvents(ctx context.Context, events []domain.Event) (int64, error)
}

// IngestHandler turns activity.captured messages into stored events. A payload
// holds either one capture object or an array of them.
type IngestHandler struct {
	recorder Recorder
}

// NewIngestHandler constructs a handler writing through recorder.
func NewIngestHandler(recorder Recorder) *IngestHandler {
	return &IngestHandler{recorder: recorder}
}

// Handle decodes msg and records its events. Redelivered messages are stored
// only once because every event carries a stable source id.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.ActivityCapturedType {
		return Permanent(fmt.Errorf("unsupported event type %q", msg.EventType))
	}
	captured, err := decodeCaptured(msg.Payload)
	if err != nil {
		return Permanent(err)
	}

	batch := make([]domain.Event, 0, len(captured))
	for i, c := range captured {
		sourceID := c.EventID
		if sourceID == "" {
			sourceID = msg.Position() + "/" + strconv.Itoa(i)
		}
		device := c.DeviceID
		if device == "" {
			device = msg.DeviceID
		}
		batch = append(batch, domain.Event{
			Timestamp:     c.Timestamp,
			App:           c.App,
			Title:         c.Title,
			URL:           c.URL,
			URLDomain:     c.URLDomain,
			Duration:      c.Duration,
			IsAFK:         c.IsAFK,
			SourceEventID: sourceID,
			DeviceID:      device,
		})
	}

	if _, err := h.recorder.RecordEvents(ctx, batch); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return Permanent(err)
		}
		return err
	}
	return nil
}

func decodeCaptured(payload json.RawMessage) ([]events.ActivityCaptured, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []events.ActivityCaptured
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, fmt.Errorf("decoding capture batch: %w", err)
		}
		return many, nil
	}
	var one events.ActivityCaptured
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decoding capture: %w", err)
	}
	return []events.ActivityCaptured{one}, nil
}
