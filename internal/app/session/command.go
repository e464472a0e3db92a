package session

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// Command names beyond the mappable transport commands in settings.
const (
	CmdPlayTrack     = "playTrack"
	CmdSeek          = "seek"
	CmdSetVolume     = "setVolume"
	CmdToggleMute    = "toggleMute"
	CmdSetRepeatMode = "setRepeatMode"
	CmdToggleShuffle = "toggleShuffle"
	CmdReorderQueue  = "reorderQueue"
	CmdClearQueue    = "clearQueue"
	CmdRemoveTrack   = "removeTrack"
	CmdSelectTrack   = "selectTrack"
	CmdAddTracks     = "addTracks"
	CmdSelectOutput  = "selectOutput"
	CmdSelectInput   = "selectInput"
	CmdStartLearn    = "startLearn"
	CmdCancelLearn   = "cancelLearn"
	CmdUnmap         = "unmap"
)

// Command is one invocation of the command surface. Only the fields the
// named command uses are read.
type Command struct {
	Name   string   `mapstructure:"command"`
	Index  int      `mapstructure:"index"`
	From   int      `mapstructure:"from"`
	To     int      `mapstructure:"to"`
	Value  float64  `mapstructure:"value"`
	Mode   string   `mapstructure:"mode"`
	Target string   `mapstructure:"target"`
	Paused bool     `mapstructure:"paused"` // playTrack: load without playing
	Paths  []string `mapstructure:"paths"`
}

// DecodeCommand builds a command from loosely typed fields, as received
// over RPC.
func DecodeCommand(fields map[string]any) (Command, error) {
	var cmd Command
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cmd,
	})
	if err != nil {
		return Command{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(fields); err != nil {
		return Command{}, errors.Wrap(err, "failed to decode command")
	}
	if cmd.Name == "" {
		return Command{}, apperr.Mark(errors.New("command name is required"), apperr.ErrOperationNotAllowed)
	}
	return cmd, nil
}

// lineAliases are the short forms accepted on the command line.
var lineAliases = map[string]string{
	"toggle":  settings.CmdTogglePlayPause,
	"next":    settings.CmdPlayNext,
	"prev":    settings.CmdPlayPrev,
	"stop":    settings.CmdStopPlayback,
	"ff":      settings.CmdSkipForward,
	"rew":     settings.CmdSkipBackward,
	"play":    CmdPlayTrack,
	"load":    CmdPlayTrack,
	"seek":    CmdSeek,
	"vol":     CmdSetVolume,
	"volume":  CmdSetVolume,
	"mute":    CmdToggleMute,
	"repeat":  CmdSetRepeatMode,
	"shuffle": CmdToggleShuffle,
	"move":    CmdReorderQueue,
	"reorder": CmdReorderQueue,
	"clear":   CmdClearQueue,
	"remove":  CmdRemoveTrack,
	"select":  CmdSelectTrack,
	"add":     CmdAddTracks,
	"output":  CmdSelectOutput,
	"input":   CmdSelectInput,
	"learn":   CmdStartLearn,
	"cancel":  CmdCancelLearn,
	"unmap":   CmdUnmap,
}

// ParseLine parses a typed command line such as "seek 50" or "move 0 2".
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	word, args := fields[0], fields[1:]

	name, ok := lineAliases[strings.ToLower(word)]
	if !ok {
		name = word
	}
	cmd := Command{Name: name, Paused: strings.EqualFold(word, "load")}

	var err error
	switch name {
	case CmdPlayTrack, CmdRemoveTrack, CmdSelectTrack:
		cmd.Index, err = intArg(args, 0)
	case CmdSeek, CmdSetVolume:
		cmd.Value, err = floatArg(args, 0)
	case CmdReorderQueue:
		if cmd.From, err = intArg(args, 0); err == nil {
			cmd.To, err = intArg(args, 1)
		}
	case CmdSetRepeatMode:
		cmd.Mode, err = stringArg(args, 0)
	case CmdSelectOutput, CmdSelectInput:
		cmd.Target = strings.Join(args, " ")
		if cmd.Target == "none" {
			cmd.Target = ""
		}
	case CmdStartLearn, CmdUnmap:
		cmd.Target, err = stringArg(args, 0)
	case CmdAddTracks:
		if len(args) == 0 {
			err = errors.New("add needs at least one path")
		}
		cmd.Paths = args
	}
	if err != nil {
		return Command{}, errors.Wrapf(err, "invalid %s command", word)
	}
	return cmd, nil
}

func stringArg(args []string, i int) (string, error) {
	if i >= len(args) {
		return "", errors.Newf("missing argument %d", i+1)
	}
	return args[i], nil
}

func intArg(args []string, i int) (int, error) {
	s, err := stringArg(args, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "argument %d", i+1)
	}
	return n, nil
}

func floatArg(args []string, i int) (float64, error) {
	s, err := stringArg(args, i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "argument %d", i+1)
	}
	return v, nil
}
