package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type logEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

var levels = map[string]int32{"debug": 0, "info": 1, "warn": 2, "error": 3}

var (
	output   = log.New(os.Stdout, "", 0)
	minLevel atomic.Int32
)

func init() { minLevel.Store(levels["info"]) }

// SetLevel sets the minimum level emitted. Unknown names mean info.
func SetLevel(name string) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		lvl = levels["info"]
	}
	minLevel.Store(lvl)
}

// SetOutput redirects log lines, mainly for tests.
func SetOutput(w io.Writer) { output.SetOutput(w) }

func emit(level, msg string, extra map[string]interface{}) {
	if levels[level] < minLevel.Load() {
		return
	}
	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   msg,
		Extra:     extra,
	}
	data, _ := json.Marshal(entry)
	output.Println(string(data))
}

func Debug(msg string, extra map[string]interface{}) {
	emit("debug", msg, extra)
}

func Info(msg string, extra map[string]interface{}) {
	emit("info", msg, extra)
}

func Warn(msg string, extra map[string]interface{}) {
	emit("warn", msg, extra)
}

func Error(msg string, extra map[string]interface{}) {
	emit("error", msg, extra)
}
