// Package apperr defines the error taxonomy shared by every component.
package apperr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Taxonomy sentinels. Concrete causes are attached with errors.Mark so that
// errors.Is(err, ErrX) holds while the original message is preserved.
var (
	ErrPlayback            = errors.New("playback error")
	ErrDecode              = errors.New("decode error")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrNetwork             = errors.New("network error")
	ErrAborted             = errors.New("media aborted")
	ErrDevice              = errors.New("device error")
	ErrUnsupportedFeature  = errors.New("unsupported feature")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrIndexOutOfRange     = errors.New("index out of range")
)

// MediaCode is the error code reported by the playback resource while a
// track is loaded or playing.
type MediaCode int

const (
	MediaAborted        MediaCode = iota + 1 // Load interrupted by a track switch
	MediaNetwork                             // Media could not be fetched
	MediaDecode                              // Media is corrupt
	MediaSrcNotSupported                     // Container or codec not supported
)

// String returns the string representation of the media code.
func (c MediaCode) String() string {
	switch c {
	case MediaAborted:
		return "aborted"
	case MediaNetwork:
		return "network"
	case MediaDecode:
		return "decode"
	case MediaSrcNotSupported:
		return "src_not_supported"
	default:
		return "unknown"
	}
}

// Sentinel returns the taxonomy sentinel for the media code.
func (c MediaCode) Sentinel() error {
	switch c {
	case MediaAborted:
		return ErrAborted
	case MediaNetwork:
		return ErrNetwork
	case MediaDecode:
		return ErrDecode
	case MediaSrcNotSupported:
		return ErrUnsupportedFormat
	default:
		return ErrPlayback
	}
}

// Media classifies a media failure for the named track.
func Media(code MediaCode, trackName string, cause error) error {
	var err error
	if cause != nil {
		err = errors.Wrapf(cause, "%s (%s)", trackName, code)
	} else {
		err = errors.Newf("%s (%s)", trackName, code)
	}
	return errors.Mark(err, code.Sentinel())
}

// Mark attaches a taxonomy sentinel to err.
func Mark(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, sentinel)
}

// Silent reports whether err is expected noise that must not be surfaced.
func Silent(err error) bool {
	return errors.Is(err, ErrAborted)
}

var kinds = []struct {
	sentinel error
	code     string
}{
	{ErrAborted, "aborted"},
	{ErrDecode, "decode_error"},
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrNetwork, "network_error"},
	{ErrPlayback, "playback_error"},
	{ErrDevice, "device_error"},
	{ErrUnsupportedFeature, "unsupported_feature"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrOperationNotAllowed, "operation_not_allowed"},
	{ErrIndexOutOfRange, "index_out_of_range"},
}

// Kind returns a stable code for err, or "internal" when it carries no
// taxonomy sentinel.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return "internal"
}

// Message returns the user-visible text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch Kind(err) {
	case "decode_error":
		return fmt.Sprintf("Could not decode track: %v", err)
	case "unsupported_format":
		return fmt.Sprintf("Unsupported audio format: %v", err)
	case "network_error":
		return fmt.Sprintf("Could not read track: %v", err)
	case "playback_error":
		return fmt.Sprintf("Playback failed: %v", err)
	case "device_error":
		return fmt.Sprintf("Device error: %v", err)
	case "unsupported_feature":
		return fmt.Sprintf("Not supported on this system: %v", err)
	case "permission_denied":
		return fmt.Sprintf("Permission denied: %v", err)
	case "operation_not_allowed":
		return fmt.Sprintf("Not allowed: %v", err)
	case "index_out_of_range":
		return fmt.Sprintf("No such track: %v", err)
	default:
		return err.Error()
	}
}
