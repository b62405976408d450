package session

import (
	"encoding/json"
	"fmt"
)

// Session is one live session reported by the provider. Identity is the
// ID alone; everything else the provider sends is carried opaquely in
// Raw and written back out unchanged when the session is persisted.
type Session struct {
	ID  string
	Raw json.RawMessage
}

// UnmarshalJSON extracts the session id and keeps the full provider
// object in Raw so that fields this program doesn't know about survive
// a snapshot round trip.
func (s *Session) UnmarshalJSON(data []byte) error {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	s.ID = probe.ID
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original provider object when available.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(struct {
		ID string `json:"id"`
	}{s.ID})
}
