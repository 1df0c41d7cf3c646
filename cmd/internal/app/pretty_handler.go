package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

// scopedAttr is an attribute bound with the groups open when it was added.
type scopedAttr struct {
	prefix string
	attr   slog.Attr
}

// prettyHandler prints one key=value line per record for local development.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []scopedAttr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("ts=")
	b.WriteString(h.paint(ansiDim, ts.Format("15:04:05.000")))
	b.WriteString(" lvl=")
	b.WriteString(levelTag(r.Level, h.color))
	b.WriteString(" msg=")
	b.WriteString(h.paint(ansiBright, quoteIfNeeded(r.Message)))

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(h.paint(ansiDim, fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)))
		}
	}

	for _, sa := range h.attrs {
		h.appendAttr(&b, sa.attr, sa.prefix)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a, prefix)
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	prefix := strings.Join(h.groups, ".")
	cp.attrs = append([]scopedAttr{}, h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, scopedAttr{prefix: prefix, attr: a})
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(b *strings.Builder, a slog.Attr, parent string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := strings.TrimSpace(a.Key)
	if a.Value.Kind() == slog.KindGroup {
		// Inline groups (empty key) keep the parent prefix.
		if key != "" {
			parent = joinKey(parent, key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, ga, parent)
		}
		return
	}
	if key == "" {
		return
	}

	fullKey := joinKey(parent, key)
	b.WriteByte(' ')
	b.WriteString(remapPrettyKey(fullKey))
	b.WriteByte('=')
	b.WriteString(h.prettyValue(fullKey, a.Value))
}

func joinKey(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return h.paint(ansiCyan, quoteIfNeeded(v.String()))
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	case "err":
		return h.paint(ansiRed, quoteIfNeeded(valueToString(v)))
	}

	return quoteIfNeeded(valueToString(v))
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func paintIf(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true // #nosec G115 -- display only.
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paintIf(color, ansiRed, "[ERROR]")
	case level >= slog.LevelWarn:
		return paintIf(color, ansiYellow, "[WARN]")
	case level < slog.LevelInfo:
		return paintIf(color, ansiMagenta, "[DEBUG]")
	default:
		return paintIf(color, ansiBlue, "[INFO]")
	}
}

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET":
		return paintIf(color, ansiGreen, m)
	case "POST":
		return paintIf(color, ansiBlue, m)
	case "PUT", "PATCH":
		return paintIf(color, ansiYellow, m)
	case "DELETE":
		return paintIf(color, ansiRed, m)
	default:
		return paintIf(color, ansiMagenta, m)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return paintIf(color, statusColor(code), strconv.Itoa(code))
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeStatusClass(class string, color bool) string {
	switch class {
	case "5xx":
		return paintIf(color, ansiRed, class)
	case "4xx":
		return paintIf(color, ansiYellow, class)
	case "3xx":
		return paintIf(color, ansiCyan, class)
	case "2xx":
		return paintIf(color, ansiGreen, class)
	default:
		return class
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paintIf(color, ansiRed, s)
	case ms >= 250:
		return paintIf(color, ansiYellow, s)
	default:
		return paintIf(color, ansiDim, s)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success", "ok", "accepted", "delivered":
		return paintIf(color, ansiGreen, result)
	case "client_error", "rejected", "dropped", "rate_limited":
		return paintIf(color, ansiYellow, result)
	case "server_error", "fail", "failed":
		return paintIf(color, ansiRed, result)
	default:
		return quoteIfNeeded(result)
	}
}
