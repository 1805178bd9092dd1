package generate

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/snipwise/snipwise/internal/relay"
)

const maxBodyBytes = 1 << 20

// Handler serves POST /functions/v1/ai-generate.
func (g *Generator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relay.SetCORS(w.Header())
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}

		var req Request
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		resp, err := g.Generate(r.Context(), req)
		switch {
		case errors.Is(err, ErrMissingPrompt):
			respondError(w, http.StatusBadRequest, "Missing prompt")
		case err != nil:
			respondError(w, http.StatusInternalServerError, err.Error())
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(resp)
		}
	})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
