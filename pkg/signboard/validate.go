package signboard

import "strings"

// Normalize returns a copy of the command with surrounding whitespace
// removed from the id. Text is kept verbatim.
func (c Command) Normalize() Command {
	c.ID = strings.TrimSpace(c.ID)
	return c
}

// Validate applies the action-specific field rules.
// It does not check whether an id exists; that is the registry's job.
//
// Rules:
//   - create: text required, id optional
//   - update: id and text required
//   - delete: all=true, or id required
//   - hide, show, list: nothing required
func (c Command) Validate() error {
	switch c.Action {
	case ActionCreate:
		if c.Text == "" {
			return ErrTextRequired
		}
	case ActionUpdate:
		if strings.TrimSpace(c.ID) == "" {
			return ErrIDRequired
		}
		if c.Text == "" {
			return ErrTextRequired
		}
	case ActionDelete:
		if !c.All && strings.TrimSpace(c.ID) == "" {
			return ErrIDRequired
		}
	case ActionHide, ActionShow, ActionList:
		// No fields required
	default:
		return ErrUnknownCommand
	}
	return nil
}
