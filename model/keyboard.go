package model

// Keyboard is one of the fixed keyboard presets a message can carry
// (§4.3, Design Note 9: "keep in one place").
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardRemove
	KeyboardPlus
	KeyboardYesNoPause
	KeyboardYesNoContinue
)

// Rows returns the button rows for a keyboard preset, or nil for
// KeyboardNone/KeyboardRemove (the caller distinguishes those by the
// Keyboard value itself, since "remove" is a distinct platform op from
// "no keyboard at all").
func (k Keyboard) Rows() [][]string {
	switch k {
	case KeyboardPlus:
		return [][]string{{"+"}}
	case KeyboardYesNoPause:
		return [][]string{{"yes", "no", "pause"}}
	case KeyboardYesNoContinue:
		return [][]string{{"yes", "no", "continue"}}
	default:
		return nil
	}
}
