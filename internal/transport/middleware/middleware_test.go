package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/clinic-management/internal/testutil"
	"github.com/frahmantamala/clinic-management/internal/transport"
	"github.com/frahmantamala/clinic-management/internal/transport/middleware"
	"github.com/frahmantamala/clinic-management/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	return req
}

var _ = Describe("IPRateLimiter", func() {
	var limiter *middleware.IPRateLimiter

	BeforeEach(func() {
		limiter = middleware.NewIPRateLimiter(1, 2, transport.NewBaseHandler(testutil.Logger()))
	})

	It("rejects a client once the burst is spent", func() {
		handler := limiter.Middleware(ok)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, request("10.0.0.1:5000"))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("10.0.0.1:5001"))
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))

		var body struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Error.Type).To(Equal("RATE_LIMITED"))
		Expect(body.Error.Message).To(Equal("Too many attempts. Please try again later."))
	})

	It("keeps separate buckets per address", func() {
		Expect(limiter.Allow("10.0.0.1")).To(BeTrue())
		Expect(limiter.Allow("10.0.0.1")).To(BeTrue())
		Expect(limiter.Allow("10.0.0.1")).To(BeFalse())
		Expect(limiter.Allow("10.0.0.2")).To(BeTrue())
	})
})

var _ = Describe("RequestID", func() {
	It("echoes the caller's trace id", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")

		middleware.RequestID(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
	})

	It("generates a trace id and attaches a request logger", func() {
		var (
			sawLogger bool
			traceID   string
		)
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawLogger = logger.From(r.Context()) != nil
			traceID = logger.TraceID(r.Context())
		})
		rec := httptest.NewRecorder()

		middleware.RequestID(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
		Expect(traceID).To(Equal(rec.Header().Get(middleware.TraceHeader)))
		Expect(sawLogger).To(BeTrue())
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("turns a panic into an internal error body", func() {
		boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		rec := httptest.NewRecorder()

		middleware.RecoveryMiddleware(testutil.Logger())(boom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).To(ContainSubstring("Internal server error"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})
})

var _ = Describe("CORS", func() {
	It("answers preflight requests from an allowed origin", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/patients", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		middleware.CORS([]string{"http://localhost:5173"})(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:5173"))
	})

	It("leaves other origins without an allow header", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
		req.Header.Set("Origin", "http://evil.example")

		middleware.CORS([]string{"http://localhost:5173"})(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("masks credentials and patient identifiers and keeps the body readable", func() {
		var logs bytes.Buffer
		lg := slog.New(slog.NewJSONHandler(&logs, nil))

		var seen string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			seen = string(raw)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"message":"The email has already been taken."}}`))
		})

		body := `{"first_name":"Jane","email":"jane@example.com","password":"hunter22","date_of_birth":"1990-01-01"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer abc.def")
		rec := httptest.NewRecorder()

		middleware.LoggingMiddleware(lg)(inner).ServeHTTP(rec, req)

		Expect(seen).To(Equal(body))
		out := logs.String()
		Expect(out).To(ContainSubstring("Jane"))
		Expect(out).NotTo(ContainSubstring("jane@example.com"))
		Expect(out).NotTo(ContainSubstring("hunter22"))
		Expect(out).NotTo(ContainSubstring("1990-01-01"))
		Expect(out).NotTo(ContainSubstring("abc.def"))
		Expect(out).To(ContainSubstring("already been taken"))
		Expect(out).To(ContainSubstring(`"status_code":422`))
	})

	It("buffers only the logged head of a large body", func() {
		var logs bytes.Buffer
		lg := slog.New(slog.NewJSONHandler(&logs, nil))

		payload := strings.Repeat("a", 1<<20)
		src := &countingReader{r: strings.NewReader(payload)}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", src)
		rec := httptest.NewRecorder()

		middleware.LoggingMiddleware(lg)(ok).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(src.n).To(BeNumerically("<=", 4*1024+1))
		Expect(logs.String()).To(ContainSubstring("[TRUNCATED]"))
	})

	It("hands the whole large body to the handler", func() {
		lg := slog.New(slog.NewJSONHandler(io.Discard, nil))

		payload := strings.Repeat("b", 64*1024)
		var seen int
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			seen = len(raw)
			w.WriteHeader(http.StatusNoContent)
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		middleware.LoggingMiddleware(lg)(inner).ServeHTTP(httptest.NewRecorder(), req)

		Expect(seen).To(Equal(len(payload)))
	})

	It("does not read multipart uploads", func() {
		var logs bytes.Buffer
		lg := slog.New(slog.NewJSONHandler(&logs, nil))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/1/avatar", strings.NewReader("--x\r\nbinary"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		rec := httptest.NewRecorder()

		middleware.LoggingMiddleware(lg)(ok).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(logs.String()).NotTo(ContainSubstring("binary"))
	})
})

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
