package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/gateway"
)

// persistJobs is the server side of the persistence gateway: POST
// {jobs:[...]} upserts by url and answers {success, stored}.
func (s *Server) persistJobs(w http.ResponseWriter, r *http.Request) {
	if s.listings == nil {
		writeFailure(w, http.StatusServiceUnavailable, "listing store unavailable")
		return
	}
	var req gateway.PersistRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, gateway.PersistResponse{Error: "invalid JSON"})
		return
	}
	stored, err := s.listings.Upsert(r.Context(), req.Jobs)
	if err != nil {
		s.logger.Error("upsert listings failed", zap.Int("listings", len(req.Jobs)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, gateway.PersistResponse{Error: "failed to store jobs"})
		return
	}
	writeJSON(w, http.StatusOK, gateway.PersistResponse{Success: true, Stored: stored})
}

type listJobsResponse struct {
	Success bool                 `json:"success"`
	Jobs    []crawler.JobListing `json:"jobs"`
	Total   int                  `json:"total"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if s.listings == nil {
		writeFailure(w, http.StatusServiceUnavailable, "listing store unavailable")
		return
	}
	filter, err := listingFilter(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.listings.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list listings failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.JobListing{}
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Success: true, Jobs: jobs, Total: len(jobs)})
}

func (s *Server) deleteJobs(w http.ResponseWriter, r *http.Request) {
	if s.listings == nil {
		writeFailure(w, http.StatusServiceUnavailable, "listing store unavailable")
		return
	}
	filter, err := listingFilter(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Company == "" && filter.Keyword == "" {
		writeFailure(w, http.StatusBadRequest, "company or keyword filter required")
		return
	}
	deleted, err := s.listings.Delete(r.Context(), filter)
	if err != nil {
		s.logger.Error("delete listings failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "failed to delete jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
