// Command qf-mock-api is a stand-in for the Quran Foundation user API during
// local development. Point QF_API_BASE_URL at it.
//
// Any x-auth-token listed in -tokens is accepted; every other token gets 401,
// which lets the refresh-and-retry path be exercised by hand.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	tokens := flag.String("tokens", "", "comma-separated access tokens to accept (empty accepts any non-empty token)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	api := &mockAPI{accepted: splitTokens(*tokens), logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/users/profile", api.authenticated(api.profile))
	mux.HandleFunc("GET /auth/v1/collections", api.authenticated(api.collections))

	logger.Info("listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type mockAPI struct {
	accepted map[string]bool
	logger   *slog.Logger
}

func (m *mockAPI) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("x-auth-token")
		clientID := r.Header.Get("x-client-id")

		m.logger.Info("incoming request",
			"method", r.Method,
			"path", r.URL.Path,
			"client_id", clientID,
			"has_token", token != "",
		)

		if token == "" || clientID == "" || (len(m.accepted) > 0 && !m.accepted[token]) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}

		next(w, r)
	}
}

func (m *mockAPI) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        "mock-user",
		"firstName": "Mock",
		"lastName":  "User",
		"email":     "mock.user@example.com",
	})
}

func (m *mockAPI) collections(w http.ResponseWriter, r *http.Request) {
	first := 10
	if n, err := strconv.Atoi(r.URL.Query().Get("first")); err == nil && n > 0 {
		first = n
	}

	collections := make([]map[string]any, 0, 2)
	for i, name := range []string{"Favorites", "Memorization"} {
		if i >= first {
			break
		}
		collections = append(collections, map[string]any{
			"id":   "collection-" + strconv.Itoa(i+1),
			"name": name,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func splitTokens(raw string) map[string]bool {
	accepted := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			accepted[t] = true
		}
	}
	return accepted
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
