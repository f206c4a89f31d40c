package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TicketID is an opaque ticket identifier. Frames carry it either as a JSON
// string or as a number; both decode to the same token.
type TicketID string

// UnmarshalJSON accepts a string, a number or null
func (id *TicketID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = TicketID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("ticket_id must be a string or number: %w", err)
	}
	*id = TicketID(n.String())
	return nil
}

func (id TicketID) String() string {
	return string(id)
}
