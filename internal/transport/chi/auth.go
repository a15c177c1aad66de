package chi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
	logpkg "github.com/kailas-cloud/rulebook/internal/logger"
)

type subjectKey struct{}

// ContextWithSubject stores the authenticated subject in the context.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or "" outside requireSubject.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// requireSubject verifies the bearer token and stores its subject in the
// request context. A missing header is 401; a header that is present but
// not a Bearer credential is 400; a bad token is 401.
func (s *Server) requireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.handleDomainError(w, r, domain.ErrUnauthenticated)
			return
		}

		subject, err := s.auth.SubjectFromHeader(header)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}

		ctx := ContextWithSubject(r.Context(), subject)
		ctx = logpkg.With(ctx, zap.String("user_id", subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
