package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
)

const (
	maxPayloadBytes      = 1 << 20
	maxIdempotencyKeyLen = 255

	// IdempotencyKeyHeader deduplicates job submissions.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// TryOnHandler handles synchronous generation and try-on jobs.
type TryOnHandler struct {
	deps   Dependencies
	prefix string
	logger logger.Logger
}

// NewTryOnHandler creates a new try-on handler.
func NewTryOnHandler(deps Dependencies, prefix string, log logger.Logger) *TryOnHandler {
	return &TryOnHandler{deps: deps, prefix: prefix, logger: log}
}

func decodePayload(op string, r *http.Request, w http.ResponseWriter) (tryon.Payload, error) {
	var p tryon.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err := dec.Decode(&p); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return p, Wrap(op, err)
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return p, WrapKind(op, ErrBadRequest, err)
	}
	return p, nil
}

// HandleGenerate handles POST {api}/try-on/ requests.
func (h *TryOnHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	const op = "api.try_on"
	p, err := decodePayload(op, r, w)
	if err != nil {
		fail(r.Context(), w, h.logger, err)
		return
	}
	res, err := h.deps.Generate(r.Context(), p)
	if err != nil {
		fail(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSubmitJob handles POST {api}/try-on/jobs requests.
// A replayed Idempotency-Key answers 200 with the original job, a new job 202.
func (h *TryOnHandler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		fail(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest,
			fmt.Errorf("%s longer than %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLen)))
		return
	}
	p, err := decodePayload(op, r, w)
	if err != nil {
		fail(r.Context(), w, h.logger, err)
		return
	}

	job, created, err := h.deps.SubmitJob(r.Context(), p, key)
	if err != nil {
		fail(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	w.Header().Set("Location", h.deps.Prefixer().URL(h.prefix+"/try-on/jobs/"+job.ID))
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, job)
}

// HandleGetJob handles GET {api}/try-on/jobs/{id} requests.
func (h *TryOnHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	job, err := h.deps.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
