// Package keymap turns raw terminal input into transport commands.
package keymap

import (
	"strings"

	"github.com/osa030/cuedeck/internal/app/settings"
)

// Key names produced by the Decoder.
const (
	KeySpace      = "Space"
	KeyArrowRight = "ArrowRight"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyEnter      = "Enter"
	KeyEscape     = "Escape"
	KeyBackspace  = "Backspace"
	KeyCtrlC      = "Ctrl+C"
)

// Bindings maps key names to commands. Letter keys are matched case-insensitively.
type Bindings map[string]string

// Default returns the standard bindings.
func Default() Bindings {
	return Bindings{
		KeySpace:      settings.CmdTogglePlayPause,
		KeyArrowRight: settings.CmdPlayNext,
		KeyArrowLeft:  settings.CmdPlayPrev,
		"s":           settings.CmdStopPlayback,
		"l":           settings.CmdSkipForward,
		"j":           settings.CmdSkipBackward,
	}
}

// Resolve returns the command bound to key. Nothing resolves while a text
// input has focus.
func (b Bindings) Resolve(key string, textFocused bool) (string, bool) {
	if textFocused {
		return "", false
	}
	if cmd, ok := b[key]; ok {
		return cmd, true
	}
	if len(key) == 1 {
		cmd, ok := b[strings.ToLower(key)]
		return cmd, ok
	}
	return "", false
}

// Decoder splits raw terminal bytes into key names. Escape sequences may
// arrive split across reads.
type Decoder struct {
	pending []byte
}

// Feed decodes b and returns the complete keys it contains.
func (d *Decoder) Feed(b []byte) []string {
	buf := append(d.pending, b...)
	d.pending = nil

	var keys []string
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		switch {
		case c == 0x1b:
			if i+1 >= len(buf) {
				d.pending = append(d.pending, buf[i:]...)
				return keys
			}
			if buf[i+1] != '[' {
				keys = append(keys, KeyEscape)
				continue
			}
			if i+2 >= len(buf) {
				d.pending = append(d.pending, buf[i:]...)
				return keys
			}
			if k, ok := arrows[buf[i+2]]; ok {
				keys = append(keys, k)
			}
			i += 2
		case c == ' ':
			keys = append(keys, KeySpace)
		case c == '\r' || c == '\n':
			keys = append(keys, KeyEnter)
		case c == 0x7f || c == 0x08:
			keys = append(keys, KeyBackspace)
		case c == 0x03:
			keys = append(keys, KeyCtrlC)
		case c >= 0x21 && c < 0x7f:
			keys = append(keys, string(c))
		}
	}
	return keys
}

// Flush returns a lone pending escape as a key. Called when no more input
// followed it.
func (d *Decoder) Flush() []string {
	if len(d.pending) == 0 {
		return nil
	}
	d.pending = nil
	return []string{KeyEscape}
}

var arrows = map[byte]string{
	'A': KeyArrowUp,
	'B': KeyArrowDown,
	'C': KeyArrowRight,
	'D': KeyArrowLeft,
}
