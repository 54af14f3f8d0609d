package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger is called.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "httpapi").Logger() }

// loggingLineWriter logs complete NDJSON lines written to a streaming response.
type loggingLineWriter struct {
	requestID string
	buf       []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if idx > 0 {
			zlog.Debug().Str("request_id", lw.requestID).RawJSON("line", lw.buf[:idx]).Msg("generate>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("WARMSETD_REQUEST_LOG"))

// SetDefaultRequestLogLevel overrides the level used when a request carries none.
func SetDefaultRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// opLog records the start and end of one service operation at the request's level.
type opLog struct {
	level LogLevel
	op    string
	reqID string
	began time.Time
}

func newOpLog(r *http.Request, op, reqID string) opLog {
	return opLog{level: requestLogLevel(r), op: op, reqID: reqID, began: time.Now()}
}

func (l opLog) start(fields map[string]any) {
	if l.level < LevelInfo {
		return
	}
	zlog.Info().Str("op", l.op).Str("request_id", l.reqID).Fields(fields).Msg("start")
}

func (l opLog) end(status int, err error, fields map[string]any) {
	switch {
	case err != nil && l.level >= LevelError:
		zlog.Error().Str("op", l.op).Str("request_id", l.reqID).Int("status", status).Dur("dur", time.Since(l.began)).Err(err).Fields(fields).Msg("end")
	case err == nil && l.level >= LevelInfo:
		zlog.Info().Str("op", l.op).Str("request_id", l.reqID).Int("status", status).Dur("dur", time.Since(l.began)).Fields(fields).Msg("end")
	}
}
