package middlewarectx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

// SignatureHeader заголовок с подписью тела запроса.
const SignatureHeader = "X-Api-Signature"

const maxWebhookBody = 1 << 20

// Sign возвращает base64(HMAC-SHA256(body)) с ключом secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// WebhookSignature пропускает запрос, только если подпись в X-Api-Signature
// совпадает с HMAC тела. При пустом секрете все запросы отклоняются.
func WebhookSignature(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.WebhookSignature"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			_ = r.Body.Close()
			if err != nil {
				log.Error("failed to read webhook body", sl.Err(err))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("failed to read request body"))
				return
			}

			signature := r.Header.Get(SignatureHeader)
			if secret == "" || signature == "" ||
				!hmac.Equal([]byte(Sign(secret, body)), []byte(signature)) {
				log.Error("invalid or missing webhook signature")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid signature"))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
