package connect

import (
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/output"
	"github.com/osa030/cuedeck/internal/app/session"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func trackFields(t track.Track) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"path":        t.Path,
		"size":        t.Size,
		"durationSec": seconds(t.Duration),
	}
}

// statusStruct renders a session snapshot.
func statusStruct(s session.Status) (*structpb.Struct, error) {
	fields := map[string]any{
		"state":            s.State.String(),
		"isPlaying":        s.IsPlaying,
		"currentIndex":     s.CurrentIndex,
		"selectedIndex":    s.SelectedIndex,
		"currentTrack":     nil,
		"isFading":         s.IsFading,
		"fadeCountdownSec": seconds(s.FadeCountdown),
		"progress":         s.Progress,
		"positionSec":      seconds(s.Position),
		"durationSec":      seconds(s.Duration),
		"volume":           s.Volume,
		"isMuted":          s.IsMuted,
		"repeatMode":       s.RepeatMode.String(),
		"isShuffled":       s.IsShuffled,
		"queue": lo.Map(s.Queue, func(t track.Track, _ int) any {
			return trackFields(t)
		}),
		"queueDurationSec": float64(s.QueueDurationSec),
		"outputs": lo.Map(s.Outputs, func(d output.Device, _ int) any {
			return map[string]any{"id": d.ID, "name": d.Name, "isActive": d.IsActive}
		}),
		"outputId": s.OutputID,
		"inputId":  s.InputID,
		"learning": s.Learning,
	}
	if s.CurrentTrack != nil {
		fields["currentTrack"] = trackFields(*s.CurrentTrack)
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode status")
	}
	return st, nil
}

// noticeStruct renders a notice as a stream message.
func noticeStruct(n notification.Notice) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]any{
		"type":       "notice",
		"id":         n.ID,
		"sequenceNo": float64(n.SequenceNo),
		"level":      string(n.Level),
		"kind":       n.Kind,
		"message":    n.Message,
		"trackId":    n.TrackID,
		"time":       n.Time.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode notice")
	}
	return st, nil
}

// connectError maps the error taxonomy onto Connect codes. The message is
// the user-visible text the notice carries.
func connectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, apperr.ErrIndexOutOfRange):
		code = connect.CodeOutOfRange
	case errors.Is(err, apperr.ErrOperationNotAllowed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, apperr.ErrPermissionDenied):
		code = connect.CodePermissionDenied
	case errors.Is(err, apperr.ErrUnsupportedFeature):
		code = connect.CodeUnimplemented
	case errors.Is(err, apperr.ErrDevice), errors.Is(err, apperr.ErrNetwork):
		code = connect.CodeUnavailable
	case errors.Is(err, apperr.ErrDecode), errors.Is(err, apperr.ErrUnsupportedFormat):
		code = connect.CodeInvalidArgument
	}
	cerr := connect.NewError(code, errors.New(apperr.Message(err)))
	cerr.Meta().Set(KindHeader, apperr.Kind(err))
	return cerr
}
