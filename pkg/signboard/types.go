package signboard

import (
	"fmt"
	"strings"
)

// Signboard is a single on-screen board owned by the registry.
// The ID is immutable once created; everything else is mutated in place
// by registry operations.
type Signboard struct {
	ID        string    `json:"id"`        // Short lowercase identifier, unique within a collection
	Text      string    `json:"text"`      // Displayed text, never persisted empty
	Frame     Frame     `json:"frame"`     // Window rectangle in screen coordinates
	Opacity   float64   `json:"opacity"`   // 0.0 (transparent) to 1.0 (opaque)
	TextColor TextColor `json:"textColor"` // Optional on read, defaults to white
}

// Frame is a rectangle in screen coordinates.
type Frame struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate checks that the frame has non-negative dimensions.
func (f Frame) Validate() error {
	if f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("frame size must be non-negative, got %gx%g", f.Width, f.Height)
	}
	return nil
}

// TextColor is the enumerated text color token stored with each signboard.
type TextColor string

const (
	// TextColorWhite is the default color for new and legacy signboards
	TextColorWhite TextColor = "white"

	// TextColorBlack renders dark text for light backgrounds
	TextColorBlack TextColor = "black"
)

// DefaultTextColor is applied when a persisted record carries no color.
const DefaultTextColor = TextColorWhite

// Validate checks if the TextColor is a valid enum value.
func (c TextColor) Validate() error {
	switch c {
	case TextColorWhite, TextColorBlack:
		return nil
	default:
		return fmt.Errorf("unknown text color: %q", c)
	}
}

// ParseTextColor maps a user-supplied token to a TextColor.
func ParseTextColor(s string) (TextColor, error) {
	c := TextColor(strings.ToLower(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// ValidateOpacity checks that an opacity value lies in [0.0, 1.0].
func ValidateOpacity(opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1, got %g", opacity)
	}
	return nil
}

// Action names the operation a Command asks the host to perform.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionHide   Action = "hide"
	ActionShow   Action = "show"
	ActionList   Action = "list"
)

// Known reports whether the action is one the dispatcher understands.
func (a Action) Known() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionHide, ActionShow, ActionList:
		return true
	default:
		return false
	}
}

// Command is a single request sent from a client to the host.
// Empty ID and Text mean the field was not supplied.
type Command struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
	All    bool   `json:"all,omitempty"` // Only meaningful for delete
}

// Response codes carried by every Response.
const (
	CodeOK          = 0
	CodeFailure     = 1 // Validation failures and malformed or unknown commands
	CodeNotFound    = 2
	CodeUnreachable = 3
)

// Response is the host's answer to a Command.
// Error is set if and only if Code is non-zero.
type Response struct {
	Code   int    `json:"code"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK builds a success response with an optional output payload.
func OK(output string) Response {
	return Response{Code: CodeOK, Output: output}
}

// Failure builds a failure response. A zero code is promoted to CodeFailure
// so the response can never claim success while carrying an error.
func Failure(code int, message string) Response {
	if code == CodeOK {
		code = CodeFailure
	}
	return Response{Code: code, Error: message}
}

// Validate checks that the response does not mix success and failure signals.
func (r Response) Validate() error {
	if r.Code == CodeOK && r.Error != "" {
		return fmt.Errorf("success response carries an error: %q", r.Error)
	}
	if r.Code != CodeOK && r.Error == "" {
		return fmt.Errorf("failure response with code %d carries no error", r.Code)
	}
	if r.Code != CodeOK && r.Output != "" {
		return fmt.Errorf("failure response with code %d carries output", r.Code)
	}
	return nil
}
