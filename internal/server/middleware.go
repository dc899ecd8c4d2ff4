package server

import (
	"context"
	"net/http"

	"github.com/immochain/immochain/internal/auth"
	"github.com/immochain/immochain/internal/model"
)

type contextKey string

const callerKey contextKey = "caller"

// requireSignature verifies the IMMO-ACCESS headers and stores the verified
// caller address in the request context.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(auth.HeaderKey)
		ts := r.Header.Get(auth.HeaderTimestamp)
		sig := r.Header.Get(auth.HeaderSignature)

		if key == "" || ts == "" || sig == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing authentication headers")
			return
		}

		caller, err := s.verifier.Verify(model.Address(key), ts, sig, r.Method, r.URL.Path)
		if err != nil {
			s.logger.Warn("request signature rejected",
				"key", key,
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			writeJSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller returns the verified address set by requireSignature.
func caller(r *http.Request) model.Address {
	addr, _ := r.Context().Value(callerKey).(model.Address)
	return addr
}
