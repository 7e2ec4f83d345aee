package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

type MessageKind string

const (
	MessagePublic  MessageKind = "public"
	MessagePrivate MessageKind = "private"
)

// TimestampLayout is the textual form used for every time value on the wire.
const TimestampLayout = "2006-01-02T15:04:05"

type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

func (t Timestamp) String() string { return t.Time.Format(TimestampLayout) }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: ts.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// Message is a chat line. TargetID is a room id for public messages and a
// friendship id for private ones.
// Wire form: [kind, target, username, email, content, actualname, filename, created_at].
type Message struct {
	Kind       MessageKind
	TargetID   int64
	AuthorID   UserID
	Username   string
	Email      string
	Content    string
	ActualName string
	FileName   string
	CreatedAt  Timestamp
}

func (m Message) HasAttachment() bool { return m.FileName != "" }

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		m.Kind, m.TargetID, m.Username, m.Email, m.Content,
		nullable(m.ActualName), nullable(m.FileName), m.CreatedAt,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &m.Kind, &m.TargetID, &m.Username, &m.Email, &m.Content,
		&m.ActualName, &m.FileName, &m.CreatedAt)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
