package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPurchase struct {
	CourseID      int64  `json:"courseId"`
	PaymentMethod string `json:"paymentMethod"`
}

// purchaseRouter повторяет маршрут покупки: читает JSON, отвечает 201 или 409 для курса 13.
func purchaseRouter() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(GzipMiddleware)

		r.Post("/purchases", func(w http.ResponseWriter, r *http.Request) {
			var req testPurchase
			if err := render.DecodeJSON(r.Body, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid request body")
				return
			}
			if req.CourseID == 13 {
				writeError(w, r, http.StatusConflict, "course already purchased")
				return
			}
			render.Status(r, http.StatusCreated)
			render.JSON(w, r, map[string]any{
				"courseId":      req.CourseID,
				"paymentMethod": req.PaymentMethod,
				"status":        "pending",
			})
		})

		r.Delete("/event-registrations/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/purchases/{id}/refund", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func gzipped(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func gunzip(t *testing.T, r io.Reader) []byte {
	t.Helper()
	zr, err := gzip.NewReader(r)
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestGzipMiddleware_PurchaseRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		compressed bool
		accept     string
		wantStatus int
		wantGzip   bool
		wantJSON   string
	}{
		{
			name:       "gzip body and gzip response",
			body:       `{"courseId":3,"paymentMethod":"yape"}`,
			compressed: true,
			accept:     "gzip",
			wantStatus: http.StatusCreated,
			wantGzip:   true,
			wantJSON:   `{"courseId":3,"paymentMethod":"yape","status":"pending"}`,
		},
		{
			name:       "gzip body and plain response",
			body:       `{"courseId":3,"paymentMethod":"plin"}`,
			compressed: true,
			wantStatus: http.StatusCreated,
			wantJSON:   `{"courseId":3,"paymentMethod":"plin","status":"pending"}`,
		},
		{
			name:       "plain body and gzip response",
			body:       `{"courseId":3,"paymentMethod":"credit_card"}`,
			accept:     "gzip, deflate, br",
			wantStatus: http.StatusCreated,
			wantGzip:   true,
			wantJSON:   `{"courseId":3,"paymentMethod":"credit_card","status":"pending"}`,
		},
		{
			name:       "error response is compressed json",
			body:       `{"courseId":13,"paymentMethod":"credit_card"}`,
			compressed: true,
			accept:     "gzip",
			wantStatus: http.StatusConflict,
			wantGzip:   true,
			wantJSON:   `{"message":"course already purchased"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.compressed {
				body = gzipped(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/purchases", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressed {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()

			purchaseRouter().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

			got := rec.Body.Bytes()
			if tt.wantGzip {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
				assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")
				got = gunzip(t, rec.Body)
			} else {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
			}
			assert.JSONEq(t, tt.wantJSON, string(got))
		})
	}
}

func TestGzipMiddleware_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/purchases", strings.NewReader(`{"courseId":3}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	purchaseRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "invalid gzip body", out["message"])
}

func TestGzipMiddleware_EmptyBodies(t *testing.T) {
	t.Run("status without body is a valid gzip stream", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/purchases/9/refund", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()

		purchaseRouter().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		assert.Empty(t, gunzip(t, rec.Body))
	})

	t.Run("no content is sent uncompressed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/event-registrations/5", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()

		purchaseRouter().ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Zero(t, rec.Body.Len())
	})
}
