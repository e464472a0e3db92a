package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/cuedeck/internal/app/keymap"
	"github.com/osa030/cuedeck/internal/app/session"
)

// escapeDelay is how long a lone ESC waits for the rest of a sequence.
const escapeDelay = 50 * time.Millisecond

// startKeys puts the terminal into raw mode and dispatches key actions to
// the session until ctx is done. quit is closed on a quit key.
func startKeys(ctx context.Context, mgr *session.Manager, quit chan<- struct{}) (func(), error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enter raw mode")
	}
	restore := func() {
		fmt.Fprint(os.Stderr, "\r\033[K")
		_ = term.Restore(fd, oldState)
	}

	input := make(chan []byte)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case input <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	go runKeys(ctx, mgr, input, quit)
	return restore, nil
}

func runKeys(ctx context.Context, mgr *session.Manager, input <-chan []byte, quit chan<- struct{}) {
	reader := keymap.NewReader(keymap.Default())
	var once sync.Once
	var flush <-chan time.Time

	for {
		var actions []keymap.Action
		select {
		case <-ctx.Done():
			return
		case chunk := <-input:
			actions = reader.Feed(chunk)
			flush = time.After(escapeDelay)
		case <-flush:
			actions = reader.Flush()
			flush = nil
		}

		for _, a := range actions {
			switch a.Kind {
			case keymap.ActionQuit:
				once.Do(func() { close(quit) })
			case keymap.ActionCommand:
				if err := mgr.Execute(ctx, session.Command{Name: a.Command}); err != nil {
					zlog.Debug().Msgf("keys: command failed: command=%s, error=%v", a.Command, err)
				}
			case keymap.ActionLine:
				cmd, err := session.ParseLine(a.Line)
				if err != nil {
					zlog.Warn().Msgf("%v", err)
					continue
				}
				if err := mgr.Execute(ctx, cmd); err != nil {
					zlog.Debug().Msgf("keys: command failed: line=%q, error=%v", a.Line, err)
				}
			}
		}

		if reader.Editing() {
			fmt.Fprintf(os.Stderr, "\r\033[K:%s", reader.Line())
		} else {
			fmt.Fprint(os.Stderr, "\r\033[K")
		}
	}
}
