package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	maxLoggedBody = 4 * 1024
	redacted      = "[FILTERED]"
)

// secretKeys are masked wherever they appear in a header or JSON key.
var secretKeys = []string{"password", "token", "authorization", "secret", "cookie"}

// patientKeys hold personal data that must not reach the logs verbatim.
var patientKeys = map[string]bool{
	"email":         true,
	"date_of_birth": true,
	"description":   true,
}

// LoggingMiddleware logs each request and response. Credentials and patient
// identifiers are masked, multipart uploads are never read. It must run
// after RequestID so the trace id header is set.
func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := w.Header().Get(TraceHeader)

			logger.InfoContext(r.Context(), "incoming request",
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", maskHeaders(r.Header),
				"body", requestBody(r),
			)

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			attrs := []any{
				"trace_id", traceID,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rec.size,
			}
			// error bodies carry the validation messages worth seeing
			if status >= http.StatusBadRequest {
				attrs = append(attrs, "body", maskJSON(rec.captured.Bytes()))
			}
			logger.Log(r.Context(), level, "response", attrs...)
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status   int
	size     int
	captured bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody + 1 - w.captured.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.captured.Write(b[:room])
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func requestBody(r *http.Request) string {
	if r.Body == nil || !isJSON(r.Header.Get("Content-Type")) {
		return ""
	}
	// only the logged head is buffered; the handler reads the rest from the wire
	head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil {
		return ""
	}
	return maskJSON(head)
}

func isJSON(contentType string) bool {
	return contentType == "" || strings.HasPrefix(strings.ToLower(contentType), "application/json")
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if isSecret(name) {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func maskJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxLoggedBody {
		return "[TRUNCATED]"
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "[NON-JSON BODY]"
	}
	masked, err := json.Marshal(maskValue(v))
	if err != nil {
		return "[UNLOGGABLE BODY]"
	}
	return string(masked)
}

func maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSecret(k) || patientKeys[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = maskValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = maskValue(val)
		}
		return out
	default:
		return v
	}
}
