package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ffgs-pipeline/internal/config"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 11, 42, 0, 0, time.UTC)
	event := domain.CycleCompleted{
		Model:          "gfs",
		Region:         "puertorico",
		Cycle:          "2024050106",
		ResultsPath:    "/srv/ffgs/puertorico/gfsresults.csv",
		DescriptorPath: "/srv/thredds/puertorico/gfs/wms.ncml",
		CompletedAt:    now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("puertorico/gfs"), msg.Key)
	assert.JSONEq(t, `{
		"model": "gfs",
		"region": "puertorico",
		"cycle": "2024050106",
		"results_path": "/srv/ffgs/puertorico/gfsresults.csv",
		"descriptor_path": "/srv/thredds/puertorico/gfs/wms.ncml",
		"completed_at": "2024-05-01T11:42:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "cycle", msg.Headers[0].Key)
	assert.Equal(t, []byte("2024050106"), msg.Headers[0].Value)
	assert.Equal(t, "completed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var back domain.CycleCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	assert.Equal(t, event, back)
}

func TestNotify_NoEventsIsNoop(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"127.0.0.1:1"}, KafkaTopic: "ffgs-cycles"}
	n := NewNotifier(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer n.Close()

	require.NoError(t, n.Notify(context.Background()))
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "hispaniola/gfs", MessageKey("hispaniola", "gfs"))
}
