package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/types"
)

// maxBodyBytes bounds request bodies; every request here is a small JSON object.
const maxBodyBytes = 64 << 10

const (
	msgRecommendFailed = "Failed to get movie recommendations"
	msgProvidersFailed = "Failed to get watch providers"
)

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRecommend returns every resolved recommendation in one response.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRecommendationRequest(r)
	if err != nil {
		errorResponse(w, r, HTTPStatus(err), err.Error())
		return
	}

	resp, err := s.recommender.Recommend(r.Context(), req.Query)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("query", req.Query).Msg("recommendation failed")
		errorResponse(w, r, HTTPStatus(err), msgRecommendFailed)
		return
	}
	jsonResponse(w, r, http.StatusOK, resp)
}

// handleRecommendStream writes one NDJSON frame per resolved recommendation.
func (s *Server) handleRecommendStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRecommendationRequest(r)
	if err != nil {
		errorResponse(w, r, HTTPStatus(err), err.Error())
		return
	}

	nw, err := NewNDJSONWriter(w)
	if err != nil {
		errorResponse(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	err = s.recommender.Stream(r.Context(), req.Query, &streamFrames{w: nw})
	switch {
	case err == nil:
	case !nw.Started():
		// Nothing sent yet, so the failure can still be a normal error response.
		logging.Ctx(r.Context()).Error().Err(err).Str("query", req.Query).Msg("recommendation stream failed")
		errorResponse(w, r, HTTPStatus(err), msgRecommendFailed)
	default:
		// The stream is already open; closing it is all that is left to do.
		logging.Ctx(r.Context()).Warn().Err(err).Int("frames", nw.Frames()).Msg("recommendation stream ended early")
	}
}

// handleProviders returns watch providers for one movie in one region.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	var req types.ProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, r, HTTPStatus(err), err.Error())
		return
	}

	resp, err := s.providers.Lookup(r.Context(), req)
	if err != nil {
		status := HTTPStatus(err)
		msg := msgProvidersFailed
		if status == http.StatusBadRequest {
			msg = err.Error()
		} else {
			logging.Ctx(r.Context()).Error().Err(err).Int("movie_id", req.MovieID).Msg("provider lookup failed")
		}
		errorResponse(w, r, status, msg)
		return
	}
	jsonResponse(w, r, http.StatusOK, resp)
}

func decodeRecommendationRequest(r *http.Request) (*types.RecommendationRequest, error) {
	var req types.RecommendationRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, types.AsValidationError(err)
	}
	return &req, nil
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &ErrInvalidBody{Cause: err}
	}
	if len(body) > maxBodyBytes {
		return &ErrInvalidBody{Cause: errors.New("body too large")}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ErrInvalidBody{Cause: err}
	}
	return nil
}

// jsonResponse writes a JSON response
func jsonResponse(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("error encoding JSON response")
	}
}

// errorResponse writes an error JSON response
func errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	jsonResponse(w, r, status, map[string]string{"error": message})
}
