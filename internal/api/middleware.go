package api

import (
	"net/http"

	"github.com/isdelr/todo-auth-be/internal/api/handlers"
	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/isdelr/todo-auth-be/internal/services"
)

// RequireUser resolves the bearer token of each request and stores the
// user in the request context. Requests without a valid token get a 401.
func RequireUser(authService services.AuthServiceProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := handlers.BearerToken(r)
			if !ok {
				handlers.RespondError(w, r, common.ErrUnauthenticated, "User")
				return
			}

			user, err := authService.Resolve(r.Context(), token)
			if err != nil {
				handlers.RespondError(w, r, err, "User")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}
