package api

import (
	"context"
	"net/http"
)

// visitDrainMiddleware piggybacks queue work on API traffic: once the
// response has been written and flushed, it runs one budgeted inline pass.
// /drain already runs a pass and /events never finishes, so both are skipped.
func (s *Server) visitDrainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		switch r.URL.Path {
		case "/drain", "/events":
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		ctx := context.WithoutCancel(r.Context())
		result, err := s.runner.RunQueue(ctx)
		if err != nil {
			s.logger.Error("visit drain failed", "error", err)
			return
		}
		s.logger.Debug("visit drain", "result", result, "handled", s.runner.Handled())
	})
}
