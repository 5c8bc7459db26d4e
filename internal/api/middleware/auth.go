package middleware

import (
	"net/http"

	"pairsbot/pkg/crypto"
)

// PanelAuth защищает API панели через HTTP Basic Auth.
// Пароль сверяется с bcrypt-хэшом из конфигурации (PANEL_PASS_HASH),
// имя пользователя не проверяется. Пустой хэш = auth выключен
// (локальное развертывание за firewall).
func PanelAuth(passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, pass, ok := r.BasicAuth()
			if !ok || !crypto.CheckPassword(pass, passHash) {
				w.Header().Set("WWW-Authenticate", `Basic realm="Control panel"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
