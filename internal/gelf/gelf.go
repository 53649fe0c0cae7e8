package gelf

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Writer sends GELF messages over UDP and implements io.Writer so it can sit
// next to stderr in an io.MultiWriter under the logger.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("gelf: dial %s: %w", addr, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = service + "-server"
	}
	return &Writer{conn: conn, hostname: hostname, service: service}, nil
}

// syslog severities
var levels = map[string]int{
	"debug": 7,
	"info":  6,
	"warn":  4,
	"error": 3,
	"fatal": 2,
}

// Write implements io.Writer. Each call carries one log record and sends one
// GELF message. JSON records keep their level, time and fields; anything
// else is sent verbatim at informational level.
func (w *Writer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	msg := map[string]any{
		"version":       "1.1",
		"host":          w.hostname,
		"short_message": line,
		"timestamp":     float64(time.Now().UnixNano()) / 1e9,
		"level":         6,
		"_service":      w.service,
	}

	var record map[string]any
	if json.Unmarshal([]byte(line), &record) == nil {
		for k, v := range record {
			switch k {
			case "msg":
				msg["short_message"] = fmt.Sprint(v)
			case "level":
				if lvl, ok := levels[strings.ToLower(fmt.Sprint(v))]; ok {
					msg["level"] = lvl
				}
			case "time":
				if t, err := time.Parse(time.RFC3339Nano, fmt.Sprint(v)); err == nil {
					msg["timestamp"] = float64(t.UnixNano()) / 1e9
				}
			case "id":
				// _id is reserved by GELF
				msg["_record_id"] = v
			default:
				msg["_"+k] = v
			}
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return len(p), nil // don't fail the log call
	}

	// Fire-and-forget
	_, _ = w.conn.Write(payload)
	return len(p), nil
}

func (w *Writer) Close() error { return w.conn.Close() }
