package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/wndprobe/model"
)

func testReport() *model.SessionReport {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &model.SessionReport{
		ID:         "0b7c",
		Policy:     "chunked",
		Peer:       "192.168.4.2:50000 -> 192.168.4.1:3333",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		LastPhase:  "CLOSED",
		Outcome:    model.OutcomeCompleted,
		BytesSent:  1467,
		Chunks: []model.ChunkRecord{
			{Index: 0, Length: 500, Gated: true, Acked: true},
			{Index: 1, Length: 500, Gated: true},
			{Index: 2, Length: 467},
		},
	}
}

func TestGetCodec(t *testing.T) {
	assert.Equal(t, CodecJsonName, GetCodec("json").Name())
	assert.Equal(t, CodecSimpleName, GetCodec("simple").Name())
	assert.Nil(t, GetCodec("protobuf"))
}

func TestCodecSimple(t *testing.T) {
	data, err := CodecSimple{}.Marshal(testReport())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:00:01.5Z 0b7c completed chunked "+
		"192.168.4.2:50000 -> 192.168.4.1:3333 CLOSED 1467 1.5s [500* 500! 467]\n", string(data))

	r := testReport()
	r.Peer = ""
	r.Chunks = nil
	r.Outcome = model.OutcomeAborted
	r.Error = "phase WAIT_SYN timed out after 1m0s"
	data, err = CodecSimple{}.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), " aborted chunked - CLOSED 1467 1.5s [] \"phase WAIT_SYN timed out after 1m0s\"\n")
}

func TestCodecJson(t *testing.T) {
	data, err := CodecJson{}.Marshal(testReport())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "completed", m["outcome"])
	assert.Equal(t, float64(1467), m["bytesSent"])
	_, ok := m["error"]
	assert.False(t, ok)
}
