package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one human-readable line per record:
//
//	15:04:05.000 WARN  http.request method=GET route="GET /chats/{roomId}" status=403
//
// Attrs added with WithAttrs are rendered once, under the group prefix that
// was open at the time.
type prettyHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool
	color  bool

	prefix   string // open groups, dot-joined with a trailing dot
	rendered []byte // pre-rendered WithAttrs output
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{out: w, mu: &sync.Mutex{}, level: slog.LevelInfo, color: color}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, paint(ts.Format("15:04:05.000"), ansiDim, h.color)...)
	buf = append(buf, ' ')
	buf = append(buf, levelLabel(r.Level, h.color)...)
	buf = append(buf, ' ')
	buf = append(buf, paint(r.Message, ansiBright, h.color)...)
	buf = append(buf, h.rendered...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	if h.source {
		if src := r.Source(); src != nil && src.File != "" {
			loc := filepath.Base(src.File) + ":" + strconv.Itoa(src.Line)
			buf = append(buf, " src="...)
			buf = append(buf, paint(loc, ansiDim, h.color)...)
		}
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	cp := *h
	cp.rendered = append([]byte(nil), h.rendered...)
	for _, a := range attrs {
		cp.rendered = cp.appendAttr(cp.rendered, h.prefix, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *prettyHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return buf
		}
		if key != "" {
			prefix += key + "."
		}
		for _, ga := range group {
			buf = h.appendAttr(buf, prefix, ga)
		}
		return buf
	}
	if key == "" {
		return buf
	}

	full := prefix + key
	buf = append(buf, ' ')
	buf = append(buf, prettyKey(full)...)
	buf = append(buf, '=')
	return append(buf, h.formatValue(full, a.Value)...)
}

// valueStyles colours the fields that request and chat logs carry.
var valueStyles = map[string]func(v slog.Value, color bool) string{
	"method": func(v slog.Value, color bool) string {
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), color)
	},
	"path":      cyanValue,
	"route":     cyanValue,
	"room_id":   magentaValue,
	"user_id":   magentaValue,
	"transport": func(v slog.Value, color bool) string { return paint(v.String(), ansiBlue, color) },
	"status": func(v slog.Value, color bool) string {
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), color)
		}
		return quoteValue(v)
	},
	"status_class": statusClassValue,
	"class":        statusClassValue,
	"duration_ms": func(v slog.Value, color bool) string {
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, color)
		}
		return quoteValue(v)
	},
	"result": func(v slog.Value, color bool) string {
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), color)
	},
	"err": func(v slog.Value, color bool) string { return paint(quoteValue(v), ansiRed, color) },
}

func cyanValue(v slog.Value, color bool) string {
	return paint(quote(strings.TrimSpace(v.String())), ansiCyan, color)
}

func magentaValue(v slog.Value, color bool) string { return paint(quoteValue(v), ansiMagenta, color) }

func statusClassValue(v slog.Value, color bool) string {
	return colorizeStatusClass(strings.TrimSpace(v.String()), color)
}

func (h *prettyHandler) formatValue(key string, v slog.Value) string {
	if style, ok := valueStyles[key]; ok {
		return style(v, h.color)
	}
	return quoteValue(v)
}

// prettyKey shortens the noisiest request log keys.
func prettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	case "request_id":
		return "req"
	}
	return k
}

func quoteValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quote(err.Error())
		}
		return quote(fmt.Sprint(v.Any()))
	default:
		return quote(v.String())
	}
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

var levelLabels = []struct {
	min   slog.Level
	label string
	code  string
}{
	{slog.LevelError, "ERROR", ansiRed},
	{slog.LevelWarn, "WARN ", ansiYellow},
	{slog.LevelInfo, "INFO ", ansiBlue},
}

func levelLabel(level slog.Level, color bool) string {
	for _, l := range levelLabels {
		if level >= l.min {
			return paint(l.label, l.code, color)
		}
	}
	return paint("DEBUG", ansiMagenta, color)
}
