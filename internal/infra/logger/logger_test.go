package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlags(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		logfile  string
		expected Config
	}{
		{name: "defaults", expected: Config{Output: "stderr", Level: "info"}},
		{name: "verbose", verbose: true, expected: Config{Output: "stderr", Level: "debug"}},
		{name: "logfile", logfile: "cuedeck.log", expected: Config{Output: "file", Level: "info", File: "cuedeck.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromFlags(tt.verbose, tt.logfile))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuedeck.log")

	closer, err := Init(Config{Output: "file", Level: "info", File: path})
	require.NoError(t, err)
	zlog.Info().Msg("playback: loaded")
	zlog.Debug().Msg("fade: tick")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"playback: loaded"`)
	assert.NotContains(t, string(data), "fade: tick")
}

func TestInit_BadFile(t *testing.T) {
	_, err := Init(Config{Output: "file", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := crlfWriter{w: &buf}

	n, err := w.Write([]byte("a\nb\n"))

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}
