package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/cuedeck/internal/app/settings"
)

func TestBindings_Resolve(t *testing.T) {
	tests := []struct {
		key      string
		focused  bool
		expected string
		ok       bool
	}{
		{key: KeySpace, expected: settings.CmdTogglePlayPause, ok: true},
		{key: KeyArrowRight, expected: settings.CmdPlayNext, ok: true},
		{key: KeyArrowLeft, expected: settings.CmdPlayPrev, ok: true},
		{key: "s", expected: settings.CmdStopPlayback, ok: true},
		{key: "S", expected: settings.CmdStopPlayback, ok: true},
		{key: "l", expected: settings.CmdSkipForward, ok: true},
		{key: "J", expected: settings.CmdSkipBackward, ok: true},
		{key: "x"},
		{key: KeyArrowUp},
		{key: KeySpace, focused: true},
		{key: "s", focused: true},
	}

	b := Default()
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cmd, ok := b.Resolve(tt.key, tt.focused)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestDecoder_Feed(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []string
	}{
		{name: "space and letters", input: []byte(" sL"), expected: []string{KeySpace, "s", "L"}},
		{name: "arrows", input: []byte("\x1b[C\x1b[D"), expected: []string{KeyArrowRight, KeyArrowLeft}},
		{name: "enter", input: []byte("\r"), expected: []string{KeyEnter}},
		{name: "ctrl c", input: []byte{0x03}, expected: []string{KeyCtrlC}},
		{name: "escape then key", input: []byte("\x1bq"), expected: []string{KeyEscape, "q"}},
		{name: "control bytes dropped", input: []byte{0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			assert.Equal(t, tt.expected, d.Feed(tt.input))
		})
	}
}

func TestDecoder_SplitSequence(t *testing.T) {
	var d Decoder

	assert.Empty(t, d.Feed([]byte{0x1b}))
	assert.Empty(t, d.Feed([]byte{'['}))
	assert.Equal(t, []string{KeyArrowRight}, d.Feed([]byte{'C'}))

	assert.Empty(t, d.Feed([]byte{0x1b}))
	assert.Equal(t, []string{KeyEscape}, d.Flush())
	assert.Nil(t, d.Flush())
}

func TestReader_Commands(t *testing.T) {
	r := NewReader(Default())

	actions := r.Feed([]byte(" \x1b[Cj"))

	assert.Equal(t, []Action{
		{Kind: ActionCommand, Command: settings.CmdTogglePlayPause},
		{Kind: ActionCommand, Command: settings.CmdPlayNext},
		{Kind: ActionCommand, Command: settings.CmdSkipBackward},
	}, actions)
}

func TestReader_TextLineSuppressesBindings(t *testing.T) {
	r := NewReader(Default())

	assert.Empty(t, r.Feed([]byte(":seek 50")))
	assert.True(t, r.Editing())
	assert.Equal(t, "seek 50", r.Line())

	actions := r.Feed([]byte("\r"))
	assert.Equal(t, []Action{{Kind: ActionLine, Line: "seek 50"}}, actions)
	assert.False(t, r.Editing())

	// Bindings fire again once the line is closed.
	assert.Equal(t, []Action{{Kind: ActionCommand, Command: settings.CmdStopPlayback}}, r.Feed([]byte("s")))
}

func TestReader_LineEditing(t *testing.T) {
	r := NewReader(Default())

	r.Feed([]byte(":vol 0.55\x7f"))
	assert.Equal(t, "vol 0.5", r.Line())

	// Escape abandons the line; a lone escape needs a flush.
	r.Feed([]byte{0x1b})
	assert.Empty(t, r.Flush())
	assert.False(t, r.Editing())
	assert.Equal(t, "", r.Line())

	// Empty lines produce nothing.
	assert.Empty(t, r.Feed([]byte(":  \r")))
}

func TestReader_Quit(t *testing.T) {
	r := NewReader(Default())
	assert.Equal(t, []Action{{Kind: ActionQuit}}, r.Feed([]byte("q")))

	r.Feed([]byte(":abc"))
	assert.Equal(t, []Action{{Kind: ActionQuit}}, r.Feed([]byte{0x03}), "ctrl+c quits even while editing")
}
