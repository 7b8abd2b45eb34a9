package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/observability"
)

// Request limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxQueries         = 200
	maxQueryLength     = 1000
)

// harvestRequest is the JSON request body for starting a harvest.
type harvestRequest struct {
	Groups         map[string][]string `json:"groups" validate:"required,min=1,dive,keys,required,max=200,endkeys,dive,max=1000"`
	PerQueryLimit  *int                `json:"per_query_limit,omitempty" validate:"omitempty,gte=1,lte=100"`
	TimeoutSeconds *int                `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1"`
	Workers        *int                `json:"workers,omitempty" validate:"omitempty,gte=1,lte=20"`
}

var requestValidator = validator.New()

// decodeHarvestRequest reads, validates and converts the request body into
// grouped queries and dispatcher options.
func (s *Server) decodeHarvestRequest(r *http.Request) (map[string][]string, harvest.Options, error) {
	opts := s.defaults

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return nil, opts, domain.NewValidationError("body", "failed to read request body")
	}

	var req harvestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, opts, domain.NewValidationError("body", "invalid JSON request body")
	}

	if err := requestValidator.Struct(req); err != nil {
		return nil, opts, validationError(err)
	}

	total := len(harvest.Flatten(req.Groups))
	if total == 0 {
		return nil, opts, domain.NewValidationError("groups", "at least one non-blank query is required")
	}
	if total > maxQueries {
		return nil, opts, domain.NewValidationError("groups", fmt.Sprintf("at most %d queries are allowed, got %d", maxQueries, total))
	}

	if req.PerQueryLimit != nil {
		opts.PerQueryLimit = *req.PerQueryLimit
	}
	if req.Workers != nil {
		opts.Workers = *req.Workers
	}
	if req.TimeoutSeconds != nil {
		timeout := time.Duration(*req.TimeoutSeconds) * time.Second
		if timeout > s.maxTimeout {
			return nil, opts, domain.NewValidationError("timeout_seconds", fmt.Sprintf("must be at most %d", int(s.maxTimeout.Seconds())))
		}
		opts.Timeout = timeout
	}

	return req.Groups, opts, nil
}

// validationError converts the first validator failure into a
// *domain.ValidationError keyed by the JSON field name.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("body", err.Error())
	}

	fe := verrs[0]
	field := jsonFieldName(fe.StructNamespace())
	msg := fmt.Sprintf("failed %q validation", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
	}
	return domain.NewValidationError(field, msg)
}

// jsonFieldName maps a validator namespace like "harvestRequest.PerQueryLimit"
// to the request's JSON field name.
func jsonFieldName(namespace string) string {
	_, field, _ := strings.Cut(namespace, ".")
	name, rest, _ := strings.Cut(field, "[")
	switch name {
	case "Groups":
		name = "groups"
	case "PerQueryLimit":
		name = "per_query_limit"
	case "TimeoutSeconds":
		name = "timeout_seconds"
	case "Workers":
		name = "workers"
	}
	if rest != "" {
		return name + "[" + rest
	}
	return name
}

// createHarvest handles POST /api/v1/harvests.
// It runs the batch synchronously and returns the deduplicated result.
func (s *Server) createHarvest(w http.ResponseWriter, r *http.Request) {
	groups, opts, err := s.decodeHarvestRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	result, err := s.harvester.Run(r.Context(), groups, opts, nil)
	if err != nil {
		logger.Error().Err(err).Msg("harvest failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
