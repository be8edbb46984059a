package middleware

import (
	"net/http"

	"github.com/dayobello/gymgate/internal/handler"
	"github.com/dayobello/gymgate/internal/store"
)

const sessionCookieName = "gymgate_session"

// RequireAdmin validates the session cookie, checks the admin flag, and
// populates the member ID in the request context.
func RequireAdmin(sessionStore *store.SessionStore, memberStore *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := sessionStore.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			member, err := memberStore.GetByID(sess.MemberID)
			if err != nil || member == nil || !member.IsAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := handler.WithMemberID(r.Context(), sess.MemberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
