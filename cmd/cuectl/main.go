// Package main provides the cuedeck remote control client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/cuedeck/internal/api/connect"
	"github.com/osa030/cuedeck/internal/app/session"
	"github.com/osa030/cuedeck/internal/app/settings"
)

var (
	app    = kingpin.New("cuectl", "cuedeck remote control client")
	server = app.Flag("server", "Server address").Default("http://127.0.0.1:7480").String()
	token  = app.Flag("token", "RPC token (or set CUEDECK_RPC_TOKEN env)").Envar("CUEDECK_RPC_TOKEN").String()

	statusCmd = app.Command("status", "Show transport status")

	toggleCmd  = app.Command("toggle", "Toggle play/pause")
	nextCmd    = app.Command("next", "Play the next cue")
	prevCmd    = app.Command("prev", "Play the previous cue or restart the current one")
	stopCmd    = app.Command("stop", "Fade out and stop")
	forwardCmd = app.Command("skip-forward", "Skip forward").Alias("ff")
	backCmd    = app.Command("skip-back", "Skip backward").Alias("rew")

	playCmd    = app.Command("play", "Play the cue at an index")
	playIndex  = playCmd.Arg("index", "Queue index (0-based)").Required().Int()
	playPaused = playCmd.Flag("paused", "Load without starting playback").Bool()

	seekCmd     = app.Command("seek", "Seek to a percentage of the current cue")
	seekPercent = seekCmd.Arg("percent", "Position 0-100").Required().Float64()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume 0.0-1.0").Required().Float64()

	muteCmd = app.Command("mute", "Toggle mute")

	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "none, all or one").Required().Enum("none", "all", "one")

	shuffleCmd = app.Command("shuffle", "Toggle shuffle")

	reorderCmd  = app.Command("reorder", "Move a cue within the queue").Alias("move")
	reorderFrom = reorderCmd.Arg("from", "Source index").Required().Int()
	reorderTo   = reorderCmd.Arg("to", "Destination index").Required().Int()

	clearCmd = app.Command("clear", "Clear the queue")

	addCmd   = app.Command("add", "Add audio files on the controller host")
	addPaths = addCmd.Arg("paths", "File paths").Required().Strings()

	outputCmd    = app.Command("output", "Select an audio output")
	outputDevice = outputCmd.Arg("device", "Output device ID").Default("").String()

	inputCmd    = app.Command("input", "Select a MIDI input (empty to disconnect)")
	inputDevice = inputCmd.Arg("device", "Input name").Default("").String()

	learnCmd    = app.Command("learn", "Learn a control mapping for a command")
	learnTarget = learnCmd.Arg("command", "Command to map").Required().Enum(settings.Commands...)

	exportPlaylistCmd  = app.Command("export-playlist", "Print the queue as an M3U playlist")
	exportPlaylistName = exportPlaylistCmd.Flag("name", "Playlist name").Default("cuedeck").String()

	exportSettingsCmd = app.Command("export-settings", "Print the settings as JSON")

	importSettingsCmd  = app.Command("import-settings", "Replace the settings from a JSON file")
	importSettingsFile = importSettingsCmd.Arg("file", "Settings JSON file").Required().ExistingFile()

	tailCmd = app.Command("tail", "Stream notices until interrupted")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case toggleCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdTogglePlayPause})
	case nextCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdPlayNext})
	case prevCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdPlayPrev})
	case stopCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdStopPlayback})
	case forwardCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdSkipForward})
	case backCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": settings.CmdSkipBackward})
	case playCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdPlayTrack, "index": *playIndex, "paused": *playPaused})
	case seekCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdSeek, "value": *seekPercent})
	case volumeCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdSetVolume, "value": *volumeLevel})
	case muteCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdToggleMute})
	case repeatCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdSetRepeatMode, "mode": *repeatMode})
	case shuffleCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdToggleShuffle})
	case reorderCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdReorderQueue, "from": *reorderFrom, "to": *reorderTo})
	case clearCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdClearQueue})
	case addCmd.FullCommand():
		paths := make([]any, len(*addPaths))
		for i, p := range *addPaths {
			paths[i] = p
		}
		err = execute(ctx, client, map[string]any{"command": session.CmdAddTracks, "paths": paths})
	case outputCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdSelectOutput, "target": *outputDevice})
	case inputCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdSelectInput, "target": *inputDevice})
	case learnCmd.FullCommand():
		err = execute(ctx, client, map[string]any{"command": session.CmdStartLearn, "target": *learnTarget})
		if err == nil {
			fmt.Println("Waiting for a control message; run `cuectl tail` to see the result")
		}
	case exportPlaylistCmd.FullCommand():
		var text string
		if text, err = client.ExportPlaylist(ctx, *exportPlaylistName); err == nil {
			fmt.Print(text)
		}
	case exportSettingsCmd.FullCommand():
		var text string
		if text, err = client.ExportSettings(ctx); err == nil {
			fmt.Println(text)
		}
	case importSettingsCmd.FullCommand():
		err = importSettings(ctx, client, *importSettingsFile)
	case tailCmd.FullCommand():
		err = tail(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe prefers the server's user-visible message.
func describe(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		if kind := connectErr.Meta().Get(apiconnect.KindHeader); kind != "" {
			return fmt.Sprintf("%s (%s)", connectErr.Message(), kind)
		}
		return connectErr.Message()
	}
	return err.Error()
}

func execute(ctx context.Context, client *apiconnect.Client, fields map[string]any) error {
	st, err := client.Execute(ctx, fields)
	if err != nil {
		return err
	}
	printSummary(st)
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	st, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== TRANSPORT STATUS ===")
	printSummary(st)

	fields := st.GetFields()
	fmt.Printf("Volume: %.2f (muted: %v)\n", fields["volume"].GetNumberValue(), fields["isMuted"].GetBoolValue())
	fmt.Printf("Repeat: %s, Shuffle: %v\n", fields["repeatMode"].GetStringValue(), fields["isShuffled"].GetBoolValue())
	if out := fields["outputId"].GetStringValue(); out != "" {
		fmt.Printf("Output: %s\n", out)
	}
	for _, v := range fields["outputs"].GetListValue().GetValues() {
		d := v.GetStructValue().GetFields()
		marker := " "
		if d["isActive"].GetBoolValue() {
			marker = "*"
		}
		fmt.Printf("  %s %-20s %s\n", marker, d["id"].GetStringValue(), d["name"].GetStringValue())
	}
	if in := fields["inputId"].GetStringValue(); in != "" {
		fmt.Printf("Input: %s\n", in)
	}
	if learning := fields["learning"].GetStringValue(); learning != "" {
		fmt.Printf("Learning: %s\n", learning)
	}

	current := int(fields["currentIndex"].GetNumberValue())
	queue := fields["queue"].GetListValue().GetValues()
	fmt.Printf("\nQueue (%d, %s):\n", len(queue), clock(fields["queueDurationSec"].GetNumberValue()))
	for i, v := range queue {
		t := v.GetStructValue().GetFields()
		marker := "  "
		if i == current {
			marker = "> "
		}
		fmt.Printf("%s%3d  %-40s %s\n", marker, i, t["name"].GetStringValue(), clock(t["durationSec"].GetNumberValue()))
	}
	fmt.Println()
	return nil
}

func printSummary(st *structpb.Struct) {
	fields := st.GetFields()
	name := "-"
	if cur := fields["currentTrack"].GetStructValue(); cur != nil {
		name = cur.GetFields()["name"].GetStringValue()
	}
	fmt.Printf("%s: %s [%s / %s]\n",
		fields["state"].GetStringValue(), name,
		clock(fields["positionSec"].GetNumberValue()), clock(fields["durationSec"].GetNumberValue()))
	if fields["isFading"].GetBoolValue() {
		fmt.Printf("Fading: %.1fs\n", fields["fadeCountdownSec"].GetNumberValue())
	}
}

func importSettings(ctx context.Context, client *apiconnect.Client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := client.ImportSettings(ctx, data); err != nil {
		return err
	}
	fmt.Println("Settings imported")
	return nil
}

func tail(ctx context.Context, client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := client.SubscribeNotices(ctx, func(msg *structpb.Struct) error {
		fields := msg.GetFields()
		if fields["type"].GetStringValue() != "notice" {
			printSummary(msg)
			return nil
		}
		fmt.Printf("[%s] %s: %s\n",
			fields["level"].GetStringValue(), fields["kind"].GetStringValue(), fields["message"].GetStringValue())
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
