package httpserver

import (
	"net/http"
	"strings"

	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

// GuestTokenHeader carries the guest-session token in both directions.
const GuestTokenHeader = "X-Guest-Token"

// GuestSessionMiddleware кладёт гостевой токен в контекст.
// Запрос без токена (или с мусорным) получает новый, он возвращается в том же заголовке.
// Аутентифицированный запрос без заголовка токен не получает.
func GuestSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSessionlessPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimSpace(r.Header.Get(GuestTokenHeader))
		if raw == "" {
			if _, authed := userctx.GetUserID(r.Context()); authed {
				next.ServeHTTP(w, r)
				return
			}
		}

		token, err := uuid.Parse(raw)
		if err != nil {
			token = uuid.New()
		}

		w.Header().Set(GuestTokenHeader, token.String())
		next.ServeHTTP(w, r.WithContext(userctx.WithGuestToken(r.Context(), token.String())))
	})
}

func isSessionlessPath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/v1/public/")
}
