package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
)

// EntitlementService описывает интерфейс проверки права доступа
// к платным функциям.
type EntitlementService interface {
	Entitled(ctx context.Context, userUID string) (bool, error)
}

// EntitlementMiddleware создает middleware, пропускающий только
// пользователей с действующей платной подпиской. Ставится после
// SessionMiddleware.
func EntitlementMiddleware(log *slog.Logger, entitlements EntitlementService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userUID, ok := r.Context().Value(UserUID).(string)
			if !ok || userUID == "" {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			entitled, err := entitlements.Entitled(r.Context(), userUID)
			if err != nil {
				log.Error("failed to check entitlement", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}
			if !entitled {
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("subscription required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
