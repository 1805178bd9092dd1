package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/snipwise/snipwise/internal/snippets"
)

const maxSnippetBody = 1 << 20

var errInvalidSnippetID = errors.New("invalid snippet id")

func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	list, err := s.snippets.List(r.Context(), user.ID)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.snippetID(w, r)
	if !ok {
		return
	}
	sn, err := s.snippets.Get(r.Context(), userFromContext(r.Context()).ID, id)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sn)
}

func (s *Server) handlePublicSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.snippetID(w, r)
	if !ok {
		return
	}
	sn, err := s.snippets.GetPublic(r.Context(), id)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sn)
}

func (s *Server) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	var in snippets.Input
	if !s.decodeSnippetBody(w, r, &in) {
		return
	}
	in, err := in.Normalize()
	if err != nil {
		s.snippetError(w, err)
		return
	}
	sn, err := s.snippets.Create(r.Context(), userFromContext(r.Context()).ID, in)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sn)
}

func (s *Server) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.snippetID(w, r)
	if !ok {
		return
	}
	var patch snippets.Patch
	if !s.decodeSnippetBody(w, r, &patch) {
		return
	}
	ctx := r.Context()
	userID := userFromContext(ctx).ID
	current, err := s.snippets.Get(ctx, userID, id)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	in, err := patch.Apply(*current).Normalize()
	if err != nil {
		s.snippetError(w, err)
		return
	}
	sn, err := s.snippets.Update(ctx, userID, id, in)
	if err != nil {
		s.snippetError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sn)
}

func (s *Server) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.snippetID(w, r)
	if !ok {
		return
	}
	if err := s.snippets.Delete(r.Context(), userFromContext(r.Context()).ID, id); err != nil {
		s.snippetError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snippetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, errInvalidSnippetID)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decodeSnippetBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSnippetBody)).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

// snippetError maps store and validation errors to responses. Rows of other
// users are indistinguishable from missing rows.
func (s *Server) snippetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snippets.ErrNotFound):
		s.respondError(w, http.StatusNotFound, snippets.ErrNotFound)
	case errors.Is(err, snippets.ErrInvalid):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.log.WithError(err).Error("snippet store")
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
