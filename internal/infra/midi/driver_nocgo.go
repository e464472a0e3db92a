//go:build !cgo

package midi

// Available reports whether a host MIDI driver is compiled in. The rtmidi
// driver needs cgo; without it no inputs are listed.
const Available = false
