package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/idempotency"
)

// Заголовки запросов и ответов.
const (
	HeaderActor            = "X-Actor"
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

// DefaultActor записывается в аудит, если вызывающий не представился.
const DefaultActor = "system"

const maxBodyBytes = 1 << 20

type ctxKey string

const actorKey ctxKey = "actor"

func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(HeaderActor))
		if actor == "" {
			actor = DefaultActor
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFrom(r *http.Request) string {
	if actor, ok := r.Context().Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}

// requestLogger пишет одну запись logrus на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			})
			switch {
			case ww.Status() >= 500:
				entry.Warn("http request failed")
			default:
				entry.Debug("http request")
			}
		})
	}
}

func recoverer(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithFields(log.Fields{
						"panic":      fmt.Sprint(rec),
						"path":       r.URL.Path,
						"request_id": middleware.GetReqID(r.Context()),
					}).Error("panic recovered in http handler")
					writeError(w, errors.New("panic in handler"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// idempotent сохраняет первый ответ на мутирующий запрос с Idempotency-Key и повторяет его.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if h.guard == nil || key == "" || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, domain.ValidationError(errInvalidBody, "body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		replay, err := h.guard.Begin(r.Context(), key, idempotency.HashRequest(r.Method, r.URL.Path, body))
		if err != nil {
			writeError(w, err)
			return
		}
		if replay != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.WriteHeader(replay.HTTPStatus)
			_, _ = w.Write(replay.Body)
			return
		}

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)

		completed := false
		defer func() {
			if !completed {
				// panic или обрыв: ключ освобождается, клиент может повторить.
				h.guard.Complete(r.Context(), key, http.StatusInternalServerError, nil)
			}
		}()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.guard.Complete(r.Context(), key, status, captured.Bytes())
		completed = true
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

var errInvalidBody = errors.New("request body is not valid JSON")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Code: errInvalidBody, Field: "body", Err: err}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.Error{
			Kind:    domain.KindValidation,
			Code:    errInvalidPathID,
			Field:   name,
			Message: fmt.Sprintf("%s must be a positive integer", name),
		}
	}
	return id, nil
}

var errInvalidPathID = errors.New("invalid path identifier")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := newErrorBody(err)
	writeJSON(w, status, body)
}
