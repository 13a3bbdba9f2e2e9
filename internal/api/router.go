package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/auth"
	"github.com/AlexZinkM/relay-wallet/internal/handler"
	"github.com/AlexZinkM/relay-wallet/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers.
// A nil jwtManager serves the wallet routes without authentication.
func SetupRouter(walletHandler *handler.WalletHandler, jwtManager *auth.JWTManager) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	protect := func(h http.HandlerFunc) http.Handler {
		if jwtManager == nil {
			return h
		}
		return requireToken(jwtManager, h)
	}

	// Wallet endpoints
	mux.Handle("POST /wallets/generate", protect(walletHandler.Generate))
	mux.Handle("POST /wallets/recover", protect(walletHandler.Recover))
	mux.Handle("POST /wallets/{id}/unlock", protect(walletHandler.Unlock))
	mux.Handle("POST /wallets/{id}/lock", protect(walletHandler.Lock))
	mux.Handle("POST /wallets/{id}/pin", protect(walletHandler.ChangePin))
	mux.Handle("DELETE /wallets/{id}/device", protect(walletHandler.Forget))
	mux.Handle("GET /wallets/{id}/status", protect(walletHandler.Status))
	mux.Handle("GET /wallets/{id}/balance", protect(walletHandler.GetBalance))
	mux.Handle("POST /wallets/{id}/send", protect(walletHandler.Send))

	// Relayer endpoints
	mux.HandleFunc("GET /relayer", walletHandler.Relayer)

	return withRequestID(mux)
}

// withRequestID tags each request with an id and logs it on completion
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(handler.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(handler.RequestIDHeader, id)
		}
		w.Header().Set(handler.RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	})
}

// requireToken rejects requests without a valid bearer token and records its subject
func requireToken(jwtManager *auth.JWTManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			unauthorized(w, r, "missing bearer token")
			return
		}
		claims, err := jwtManager.Validate(token)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), claims.Subject)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	handler.WriteError(w, r, http.StatusUnauthorized, model.CodeUnauthorized, msg)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
