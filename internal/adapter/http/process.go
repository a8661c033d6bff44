package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/pipeline"
)

const maxRequestBytes = 1 << 20

var validate = validator.New()

// executeRequest is the body of a process execution.
type executeRequest struct {
	Token             string    `json:"token"`
	Product           string    `json:"product" validate:"required"`
	LatRange          []float64 `json:"lat_range" validate:"required_with=LongRange,omitempty,len=2,dive,gte=-90,lte=90"`
	LongRange         []float64 `json:"long_range" validate:"required_with=LatRange,omitempty,len=2,dive,gte=-180,lte=180"`
	TimeRange         []*string `json:"time_range" validate:"required,min=1,max=2"`
	Out               string    `json:"out"`
	BucketDestination string    `json:"bucket_destination"`
	Debug             bool      `json:"debug"`
}

// toRange validates the body and converts it. Failures wrap
// domain.ErrInvalidArgument.
func (e executeRequest) toRange() (pipeline.RangeRequest, error) {
	if err := validate.Struct(e); err != nil {
		return pipeline.RangeRequest{}, domain.Invalid("%v", err)
	}

	req := pipeline.RangeRequest{Product: e.Product, Out: e.Out, Bucket: e.BucketDestination}
	if e.TimeRange[0] == nil {
		return req, domain.Invalid("time_range start is required")
	}
	start, err := domain.ParseDateTime(*e.TimeRange[0])
	if err != nil {
		return req, err
	}
	req.Start = start
	if len(e.TimeRange) == 2 && e.TimeRange[1] != nil {
		if req.End, err = domain.ParseDateTime(*e.TimeRange[1]); err != nil {
			return req, err
		}
	}

	if len(e.LatRange) == 2 {
		bbox := domain.NewBBox(e.LongRange[0], e.LatRange[0], e.LongRange[1], e.LatRange[1])
		if err := bbox.Validate(); err != nil {
			return req, err
		}
		req.BBox = &bbox
	}
	return req, nil
}

func (s *Server) authorized(token string) bool {
	return s.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeResult(w, domain.Fail(domain.Invalid("read request body: %v", err)))
		return
	}
	// The token is checked before anything else in the body is looked at.
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(data, &auth)
	if !s.authorized(auth.Token) {
		s.writeResult(w, domain.Fail(fmt.Errorf("%w: invalid token", domain.ErrDenied)))
		return
	}

	var body executeRequest
	if err := json.Unmarshal(data, &body); err != nil {
		s.writeResult(w, domain.Fail(domain.Invalid("decode request body: %v", err)))
		return
	}
	req, err := body.toRange()
	if err != nil {
		s.writeResult(w, domain.Fail(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), processTimeout)
	defer cancel()

	var reporter pipeline.Reporter
	if body.Debug {
		reporter = logReporter{logger: s.logger.With("product", req.Product)}
	}
	s.writeResult(w, s.runner.RunRange(ctx, req, reporter))
}

func (s *Server) writeResult(w http.ResponseWriter, res domain.Result) {
	if res.Status != domain.StatusOK {
		s.logger.Warn("process execution failed", "status", res.Status, "error", res.Error)
	}
	writeJSON(w, statusCode(res.Status), res)
}

func statusCode(st domain.Status) int {
	switch st {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusDenied:
		return http.StatusForbidden
	case domain.StatusInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// logReporter logs progress of debug executions.
type logReporter struct {
	logger *slog.Logger
}

func (l logReporter) Report(_ context.Context, percent int, message string) {
	l.logger.Info("process progress", "percent", percent, "message", message)
}
