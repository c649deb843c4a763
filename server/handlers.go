package server

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"openenterprise/webota/update"
)

func (s *Server) handlePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(s.panel.AppendPage(nil))
	}
}

func (s *Server) handleReadout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(s.panel.AppendJSON(nil))
	}
}

func (s *Server) handlePress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !s.panel.Press(id) {
			http.NotFound(w, r)
			return
		}
		if s.metrics != nil {
			s.metrics.Pressed(id)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, id+" pressed")
	}
}

// handleUpdate streams the form body into the session. The outcome is in
// the body, the status is 200 either way.
func (s *Server) handleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := false
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch {
		case err != nil || mediaType != "multipart/form-data" || params["boundary"] == "":
			s.logger.Warn("ota:bad-upload", slog.String("content_type", r.Header.Get("Content-Type")))
		default:
			ok, err = update.Receive(s.session, r.Body, params["boundary"])
			if err != nil {
				s.logger.Warn("ota:upload-error", slog.String("err", err.Error()))
			}
		}
		io.Copy(io.Discard, r.Body)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Connection", "close")
		if !ok {
			io.WriteString(w, "FAIL")
			return
		}
		io.WriteString(w, "OK")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http:request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("http:panic-recovered", slog.String("path", r.URL.Path), slog.Any("panic", rec))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
