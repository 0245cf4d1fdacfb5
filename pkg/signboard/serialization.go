package signboard

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Serialization helpers for the wire envelope and the persisted snapshot.
//
// Envelopes are tagged JSON records carrying a format version, the request id
// used for correlation, and exactly one body:
//
//	{"v":1,"request_id":"01J...","command":{"action":"create","text":"Room 4"}}
//	{"v":1,"request_id":"01J...","response":{"code":0,"output":"created ab12cd34"}}
//
// Unknown fields are ignored so newer senders can add
// optional fields, but anything malformed is reported as a DecodeError rather
// than partially applied.

// EnvelopeVersion is the only envelope format version this package speaks.
const EnvelopeVersion = 1

type commandEnvelope struct {
	Version   int      `json:"v"`
	RequestID string   `json:"request_id"`
	Command   *Command `json:"command"`
}

type responseEnvelope struct {
	Version   int       `json:"v"`
	RequestID string    `json:"request_id"`
	Response  *Response `json:"response"`
}

// DecodeError reports a payload that could not be decoded.
// RequestID is set when the correlation id could still be recovered, which
// lets the dispatcher answer with a generic failure instead of dropping it.
type DecodeError struct {
	RequestID string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("undecodable envelope: %v", e.Err)
	}
	return fmt.Sprintf("undecodable envelope (request %s): %v", e.RequestID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RecoveredRequestID returns the request id carried by a DecodeError, if any.
func RecoveredRequestID(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.RequestID
	}
	return ""
}

// EncodeCommand wraps a command in a versioned envelope.
func EncodeCommand(requestID string, cmd Command) ([]byte, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request id cannot be empty")
	}
	data, err := json.Marshal(commandEnvelope{
		Version:   EnvelopeVersion,
		RequestID: requestID,
		Command:   &cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command envelope: %w", err)
	}
	return data, nil
}

// EncodeResponse wraps a response in a versioned envelope.
// Responses that mix success and failure signals are refused.
func EncodeResponse(requestID string, resp Response) ([]byte, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request id cannot be empty")
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	data, err := json.Marshal(responseEnvelope{
		Version:   EnvelopeVersion,
		RequestID: requestID,
		Response:  &resp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response envelope: %w", err)
	}
	return data, nil
}

// DecodeCommand unwraps a command envelope.
// The command is not validated; call Command.Validate for action rules.
func DecodeCommand(payload []byte) (string, Command, error) {
	fields, requestID, err := decodeHeader(payload)
	if err != nil {
		return requestID, Command{}, err
	}

	body, ok := fields["command"]
	if !ok || isNull(body) {
		return requestID, Command{}, &DecodeError{RequestID: requestID, Err: errors.New("missing command body")}
	}

	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return requestID, Command{}, &DecodeError{RequestID: requestID, Err: fmt.Errorf("malformed command: %w", err)}
	}

	return requestID, cmd, nil
}

// DecodeResponse unwraps a response envelope and checks that Error is set exactly when Code is non-zero.
func DecodeResponse(payload []byte) (string, Response, error) {
	fields, requestID, err := decodeHeader(payload)
	if err != nil {
		return requestID, Response{}, err
	}

	body, ok := fields["response"]
	if !ok || isNull(body) {
		return requestID, Response{}, &DecodeError{RequestID: requestID, Err: errors.New("missing response body")}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return requestID, Response{}, &DecodeError{RequestID: requestID, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if err := resp.Validate(); err != nil {
		return requestID, Response{}, &DecodeError{RequestID: requestID, Err: err}
	}

	return requestID, resp, nil
}

// decodeHeader reads the envelope as a loose object so the request id can be
// recovered even when the rest of the payload is malformed.
func decodeHeader(payload []byte) (map[string]json.RawMessage, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, "", &DecodeError{Err: err}
	}

	var requestID string
	if raw, ok := fields["request_id"]; ok {
		if err := json.Unmarshal(raw, &requestID); err != nil {
			return nil, "", &DecodeError{Err: fmt.Errorf("request_id is not a string: %w", err)}
		}
	}
	if requestID == "" {
		return nil, "", &DecodeError{Err: errors.New("missing request_id")}
	}

	var version int
	raw, ok := fields["v"]
	if !ok {
		return nil, requestID, &DecodeError{RequestID: requestID, Err: errors.New("missing envelope version")}
	}
	if err := json.Unmarshal(raw, &version); err != nil {
		return nil, requestID, &DecodeError{RequestID: requestID, Err: fmt.Errorf("invalid envelope version: %w", err)}
	}
	if version != EnvelopeVersion {
		return nil, requestID, &DecodeError{RequestID: requestID, Err: fmt.Errorf("unsupported envelope version %d", version)}
	}

	return fields, requestID, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// EncodeSnapshot serializes the full collection for storage.
// A nil slice is written as an empty array so the snapshot stays a marker.
func EncodeSnapshot(items []Signboard) ([]byte, error) {
	if items == nil {
		items = []Signboard{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a stored collection. It never fails: unparsable
// data yields an empty collection, and individual records are sanitized.
func DecodeSnapshot(data []byte) []Signboard {
	if len(data) == 0 {
		return []Signboard{}
	}
	var items []Signboard
	if err := json.Unmarshal(data, &items); err != nil {
		return []Signboard{}
	}
	return Sanitize(items)
}

// Sanitize repairs loaded records.
// Records with empty or repeated ids are dropped, a missing or unknown color
// becomes DefaultTextColor, opacity is clamped to [0,1] and negative sizes to 0.
func Sanitize(items []Signboard) []Signboard {
	out := make([]Signboard, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}

		if s.TextColor.Validate() != nil {
			s.TextColor = DefaultTextColor
		}
		switch {
		case s.Opacity < 0:
			s.Opacity = 0
		case s.Opacity > 1:
			s.Opacity = 1
		}
		if s.Frame.Width < 0 {
			s.Frame.Width = 0
		}
		if s.Frame.Height < 0 {
			s.Frame.Height = 0
		}
		out = append(out, s)
	}
	return out
}
