package keymap

import "strings"

// ActionKind distinguishes reader outputs.
type ActionKind int

const (
	ActionCommand ActionKind = iota // A bound key was pressed
	ActionLine                      // A text line was submitted
	ActionQuit                      // Ctrl+C or q
)

// Action is one outcome of keyboard input.
type Action struct {
	Kind    ActionKind
	Command string
	Line    string
}

// Reader resolves keys against bindings. ':' opens a text line; while it is
// open keys edit the line and no binding fires.
type Reader struct {
	bindings Bindings
	decoder  Decoder
	editing  bool
	line     strings.Builder
}

// NewReader creates a reader over bindings.
func NewReader(bindings Bindings) *Reader {
	return &Reader{bindings: bindings}
}

// Editing reports whether the text line has focus.
func (r *Reader) Editing() bool {
	return r.editing
}

// Line returns the text typed so far.
func (r *Reader) Line() string {
	return r.line.String()
}

// Feed processes raw terminal bytes.
func (r *Reader) Feed(b []byte) []Action {
	return r.keys(r.decoder.Feed(b))
}

// Flush processes a pending lone escape.
func (r *Reader) Flush() []Action {
	return r.keys(r.decoder.Flush())
}

func (r *Reader) keys(keys []string) []Action {
	var actions []Action
	for _, k := range keys {
		if a, ok := r.key(k); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func (r *Reader) key(k string) (Action, bool) {
	if k == KeyCtrlC {
		return Action{Kind: ActionQuit}, true
	}

	if r.editing {
		switch k {
		case KeyEnter:
			line := strings.TrimSpace(r.line.String())
			r.closeLine()
			if line == "" {
				return Action{}, false
			}
			return Action{Kind: ActionLine, Line: line}, true
		case KeyEscape:
			r.closeLine()
		case KeyBackspace:
			s := r.line.String()
			if s != "" {
				r.line.Reset()
				r.line.WriteString(s[:len(s)-1])
			}
		case KeySpace:
			r.line.WriteByte(' ')
		default:
			if len(k) == 1 {
				r.line.WriteString(k)
			}
		}
		return Action{}, false
	}

	switch k {
	case ":":
		r.editing = true
		return Action{}, false
	case "q", "Q":
		return Action{Kind: ActionQuit}, true
	}

	cmd, ok := r.bindings.Resolve(k, r.editing)
	if !ok {
		return Action{}, false
	}
	return Action{Kind: ActionCommand, Command: cmd}, true
}

func (r *Reader) closeLine() {
	r.editing = false
	r.line.Reset()
}
