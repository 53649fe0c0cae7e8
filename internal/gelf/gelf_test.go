package gelf

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8192)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(buf[:n], &msg))
	return msg
}

func TestWriter(t *testing.T) {
	conn := listen(t)
	w, err := New(conn.LocalAddr().String(), "oxiforms")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	t.Run("Should forward a JSON record with its level and fields", func(t *testing.T) {
		line := `{"time":"2026-01-02T03:04:05Z","level":"warn","msg":"blob: upload failed","field":"cv","id":"x1"}` + "\n"
		n, err := w.Write([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, len(line), n)

		msg := receive(t, conn)
		assert.Equal(t, "1.1", msg["version"])
		assert.Equal(t, "blob: upload failed", msg["short_message"])
		assert.EqualValues(t, 4, msg["level"])
		assert.Equal(t, "cv", msg["_field"])
		assert.Equal(t, "x1", msg["_record_id"])
		assert.Equal(t, "oxiforms", msg["_service"])
		assert.InDelta(t, float64(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix()), msg["timestamp"], 0.001)
	})

	t.Run("Should send plain lines verbatim", func(t *testing.T) {
		_, err := w.Write([]byte("INFO server starting\n"))
		require.NoError(t, err)
		msg := receive(t, conn)
		assert.Equal(t, "INFO server starting", msg["short_message"])
		assert.EqualValues(t, 6, msg["level"])
	})
}
