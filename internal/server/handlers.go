package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/n0madic/go-appforge/internal/apperr"
	"github.com/n0madic/go-appforge/internal/codec"
	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/github"
	"github.com/n0madic/go-appforge/internal/normalize"
	"github.com/n0madic/go-appforge/internal/pipeline"
	"github.com/n0madic/go-appforge/internal/render"
	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
)

var errStoreDisabled = &config.Error{Key: "APPFORGE_DB_PATH", Message: "bundle store is disabled"}

// NormalizeRequest is the body of POST /v1/normalize.
type NormalizeRequest struct {
	Completion *string `json:"completion"`
}

// NormalizeResponse reports a successful normalization.
type NormalizeResponse struct {
	Stage  string           `json:"stage"`
	Bundle types.CodeBundle `json:"bundle"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Status >= http.StatusInternalServerError && e.Err != nil {
		slog.Error("request.error", "code", e.Code, "error", e.Err, "request_id", requestIDFrom(r.Context()))
	}
	codec.WriteError(w, e.Status, string(e.Code), e.Message, requestIDFrom(r.Context()))
}

// decodeJSONBody enforces the content type and decodes the body into v.
func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		s.writeError(w, r, apperr.NewInvalidInput("Content-Type must be application/json"))
		return false
	}
	body, err := readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, apperr.NewInvalidInput("Request body is too large"))
			return false
		}
		s.writeError(w, r, apperr.NewInvalidInput("Failed to read request body"))
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		s.writeError(w, r, apperr.NewInvalidInput("Request body is empty"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, r, apperr.NewInvalidInput("Invalid JSON in request body"))
		return false
	}
	return true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	message, ok := req.Message.(string)
	if !ok {
		s.writeError(w, r, apperr.NewInvalidInput("Invalid message format. Expected a string."))
		return
	}

	rc := &pipeline.RequestContext{Context: r.Context(), RequestID: requestIDFrom(r.Context())}
	rec, err := s.Pipeline.Generate(rc, message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	codec.WriteJSON(w, http.StatusOK, rec.Response())
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Completion == nil {
		s.writeError(w, r, apperr.NewInvalidInput("completion must be a string"))
		return
	}

	result, err := normalize.Normalize(*req.Completion)
	if err != nil {
		var nerr *normalize.Error
		if errors.As(err, &nerr) {
			slog.Warn("normalize.failed",
				"kind", string(nerr.Kind),
				"stage", nerr.Stage,
				"field", nerr.Field,
				"diagnostic", nerr.Diagnostic,
				"request_id", requestIDFrom(r.Context()),
			)
		}
		s.writeError(w, r, err)
		return
	}
	codec.WriteJSON(w, http.StatusOK, NormalizeResponse{Stage: result.Stage, Bundle: result.Bundle})
}

func (s *Server) handleListBundles(w http.ResponseWriter, r *http.Request) {
	if s.Bundles == nil {
		s.writeError(w, r, errStoreDisabled)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.NewInvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	recs, err := s.Bundles.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := types.BundleList{Object: "list", Data: make([]types.BundleResponse, 0, len(recs))}
	for i := range recs {
		out.Data = append(out.Data, recs[i].Response())
	}
	codec.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) lookupBundle(w http.ResponseWriter, r *http.Request, id string) (*store.Record, bool) {
	if s.Bundles == nil {
		s.writeError(w, r, errStoreDisabled)
		return nil, false
	}
	rec, err := s.Bundles.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, apperr.NewNotFound(id))
		return nil, false
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupBundle(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	codec.WriteJSON(w, http.StatusOK, rec.Response())
}

func (s *Server) handleViewBundle(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupBundle(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	page, err := render.HTML(rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	if s.Publisher == nil {
		s.writeError(w, r, &config.Error{Key: "GITHUB_ACCESS_TOKEN", Message: "GitHub token is not configured"})
		return
	}
	var req types.RepositoryRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}

	var files []github.File
	if req.BundleID != "" {
		rec, ok := s.lookupBundle(w, r, req.BundleID)
		if !ok {
			return
		}
		files = github.BundleFiles(rec.Bundle)
	}

	repo, err := s.Publisher.CreateRepository(r.Context(), req.Name, types.BoolOr(req.Private, true))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := types.RepositoryResponse{
		FullName: repo.FullName,
		HTMLURL:  repo.HTMLURL,
		Private:  repo.Private,
	}

	if len(files) > 0 {
		sha, err := s.Publisher.PushFiles(r.Context(), repo.FullName, files, "Add generated application")
		if err != nil {
			// The repository already exists; report it so the push can be retried.
			e := apperr.From(err)
			reqID := requestIDFrom(r.Context())
			slog.Warn("repository.push.failed",
				"repository", repo.FullName,
				"code", e.Code,
				"error", err,
				"request_id", reqID,
			)
			resp.PushError = &types.ErrorDetail{Message: e.Message, Code: string(e.Code), RequestID: reqID}
			codec.WriteJSON(w, http.StatusMultiStatus, resp)
			return
		}
		resp.CommitSHA = sha
	}
	codec.WriteJSON(w, http.StatusCreated, resp)
}
