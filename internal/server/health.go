package server

import (
	"net/http"

	"github.com/n0madic/go-appforge/internal/codec"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"model":   s.Config.Sampling.Model,
		"store":   s.Bundles != nil,
		"publish": s.Publisher != nil,
	})
}
