package message

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/timestamp"
	"github.com/google/uuid"
)

// BaseMessage is the standard Message implementation: a typed payload plus
// metadata, immutable once constructed. Everything that moves between
// pipeline components rides in one of these.
//
//	// stamped now (the usual case)
//	msg := NewBaseMessage(msgType, payload, "clusterscan-eu1")
//
//	// stamped with the row's own time (CSV replay)
//	msg := NewBaseMessage(msgType, payload, "csvfile-replay", WithTime(rowTime))
type BaseMessage struct {
	msgType Type
	payload Payload
	id      string
	meta    Meta
}

// Option configures a BaseMessage at construction.
type Option func(*BaseMessage)

// WithTime stamps the message with createdAt instead of time.Now. Replays
// of historical exports need the original scan time, not the replay time.
func WithTime(createdAt time.Time) Option {
	return func(m *BaseMessage) {
		if defaultMeta, ok := m.meta.(*DefaultMeta); ok {
			m.meta = NewDefaultMeta(createdAt, defaultMeta.Source())
		}
	}
}

// WithMeta replaces the default metadata wholesale.
func WithMeta(meta Meta) Option {
	return func(m *BaseMessage) { m.meta = meta }
}

// NewBaseMessage builds a message with a fresh UUID, stamped now unless an
// option says otherwise. source names the component that produced it, e.g.
// "clusterscan-eu1".
func NewBaseMessage(msgType Type, payload Payload, source string, opts ...Option) *BaseMessage {
	m := &BaseMessage{
		msgType: msgType,
		payload: payload,
		id:      uuid.New().String(),
		meta:    NewDefaultMeta(time.Now(), source),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

func (m *BaseMessage) ID() string       { return m.id }
func (m *BaseMessage) Type() Type       { return m.msgType }
func (m *BaseMessage) Payload() Payload { return m.payload }
func (m *BaseMessage) Meta() Meta       { return m.meta }

// Hash returns a SHA256 over the message type and payload bytes. Used for
// dedup when the same index row arrives twice in one scan window.
func (m *BaseMessage) Hash() string {
	h := sha256.New()

	// sha256.Write never fails; the checks keep the error path honest.
	if _, err := h.Write([]byte(m.msgType.String())); err != nil {
		return ""
	}
	data, err := m.payload.MarshalJSON()
	if err == nil {
		if _, writeErr := h.Write(data); writeErr != nil {
			return ""
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks the type, payload, and metadata. Failures come back as
// invalid-class errors.
func (m *BaseMessage) Validate() error {
	invalid := func(action string) error {
		return errors.WrapInvalid(errors.ErrInvalidData, "BaseMessage", "Validate", action)
	}

	switch {
	case !m.msgType.IsValid():
		return invalid(fmt.Sprintf("invalid message type: %s", m.msgType.String()))
	case m.payload == nil:
		return invalid("payload cannot be nil")
	case m.meta == nil:
		return invalid("meta cannot be nil")
	}

	err := m.payload.Validate()
	if err != nil {
		err = errors.WrapInvalid(err, "BaseMessage", "Validate", "invalid payload")
	}
	return err
}

// wireFormat is the JSON shape a BaseMessage takes on a NATS subject.
type wireFormat struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Meta    map[string]any  `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON renders the wire format. Timestamps go out as Unix
// milliseconds so every consumer sees the same representation.
func (m *BaseMessage) MarshalJSON() ([]byte, error) {
	body, err := m.payload.MarshalJSON()
	if err != nil {
		return nil, errors.WrapInvalid(err, "BaseMessage", "MarshalJSON", "failed to marshal payload")
	}

	return json.Marshal(wireFormat{
		ID:      m.id,
		Type:    m.msgType,
		Payload: json.RawMessage(body),
		Meta: map[string]any{
			"source":      m.meta.Source(),
			"created_at":  timestamp.ToUnixMs(m.meta.CreatedAt()),
			"received_at": timestamp.ToUnixMs(m.meta.ReceivedAt()),
		},
	})
}

// UnmarshalJSON rebuilds a typed message from the wire. The payload type
// must be registered; generic consumers can use "core.json.v1"
// (GenericJSONPayload) instead of registering every type they relay.
func (m *BaseMessage) UnmarshalJSON(data []byte) error {
	var frame wireFormat
	if err := json.Unmarshal(data, &frame); err != nil {
		return errors.WrapInvalid(err, "BaseMessage", "UnmarshalJSON", "failed to unmarshal wire format")
	}

	m.id = frame.ID
	m.msgType = frame.Type

	// timestamp.Parse accepts both int64 milliseconds and RFC3339 strings,
	// so rows replayed from older exports still parse.
	metaTime := func(key string) time.Time {
		if ms := timestamp.Parse(frame.Meta[key]); ms != 0 {
			return timestamp.ToTime(ms)
		}
		return time.Time{}
	}
	source, _ := frame.Meta["source"].(string)
	m.meta = NewDefaultMetaWithReceivedAt(metaTime("created_at"), metaTime("received_at"), source)

	created := component.CreatePayload(m.msgType.Domain, m.msgType.Category, m.msgType.Version)
	if created == nil {
		return errors.WrapInvalid(
			fmt.Errorf("unregistered payload type: %s", m.msgType.String()),
			"BaseMessage", "UnmarshalJSON", "payload type lookup")
	}

	msgPayload, ok := created.(Payload)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidData, "BaseMessage", "UnmarshalJSON",
			"payload does not implement message.Payload interface")
	}
	if err := json.Unmarshal(frame.Payload, msgPayload); err != nil {
		return errors.WrapInvalid(err, "BaseMessage", "UnmarshalJSON", "failed to unmarshal payload")
	}
	m.payload = msgPayload

	return nil
}
