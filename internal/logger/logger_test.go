package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warning ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNewJSONWritesStructuredRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New("info", FormatJSON, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("webhook received", slog.String("component", "feishu_webhook"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "webhook received", record["msg"])
	assert.Equal(t, "feishu_webhook", record["component"])
}

func TestNewTextAndUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New("debug", FormatText, &buf)
	require.NoError(t, err)
	log.Info("listening", slog.Int("port", 3000))
	assert.Contains(t, buf.String(), "listening")

	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
}
