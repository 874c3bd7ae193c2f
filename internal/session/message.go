package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"noteflare/internal/models"
)

var ErrMalformedEdit = errors.New("malformed edit message")

// Edit is an inbound edit kept as raw fields so it can be relayed verbatim.
type Edit map[string]json.RawMessage

// ParseEdit accepts any JSON object whose title and body (when present) are
// strings and whose tags (when present) are a list of strings.
func ParseEdit(raw []byte) (Edit, error) {
	var e Edit
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEdit, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedEdit)
	}
	for _, key := range []string{"title", "body"} {
		if v, ok := e[key]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%w: %s must be a string", ErrMalformedEdit, key)
			}
		}
	}
	if v, ok := e["tags"]; ok {
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			return nil, fmt.Errorf("%w: tags must be a list of strings", ErrMalformedEdit)
		}
	}
	return e, nil
}

// RelayFrame re-encodes the edit with the relay discriminator. The sender's
// own type is overwritten; documentId is filled in only when absent.
func (e Edit) RelayFrame(documentID string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	out["type"] = json.RawMessage(`"` + models.FrameUpdate + `"`)
	if _, ok := out["documentId"]; !ok {
		id, err := json.Marshal(documentID)
		if err != nil {
			return nil, err
		}
		out["documentId"] = id
	}
	return json.Marshal(out)
}
