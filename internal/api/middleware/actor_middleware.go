package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/oapi-lab/canteen/internal/constants"
	"github.com/oapi-lab/canteen/internal/domain/model"
)

// ActorMiddleware 從 header 還原請求身份
// 身份驗證由前端 gateway 處理，這裡只信任轉送進來的 header
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(constants.HeaderUserID)
		if rawID == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var caps []model.Capability
		if rawCaps := r.Header.Get(constants.HeaderCapabilities); rawCaps != "" {
			for _, c := range strings.Split(rawCaps, ",") {
				caps = append(caps, model.Capability(strings.TrimSpace(c)))
			}
		}

		actor := model.NewActor(id, caps...)
		ctx := context.WithValue(r.Context(), constants.ActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActor 從context取出請求身份，沒有身份回nil
func GetActor(r *http.Request) *model.Actor {
	if v := r.Context().Value(constants.ActorKey); v != nil {
		if actor, ok := v.(*model.Actor); ok {
			return actor
		}
	}
	return nil
}

// RequireActor 擋掉沒有身份的請求
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetActor(r) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
