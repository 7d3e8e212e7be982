// Package tryon defines the try-on request/response contract shared by the
// HTTP layer, the job workers and the generation backends.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Schedulers accepted by the diffusion backend.
const (
	SchedulerDDIM  = "ddim"
	SchedulerDPMPP = "dpmpp"
	SchedulerHeun  = "heun"

	DefaultScheduler = SchedulerDPMPP
	MaxPromptLength  = 2000
)

// ErrInvalidPayload wraps every validation failure.
var ErrInvalidPayload = errors.New("invalid try-on payload")

// Payload is one try-on request.
type Payload struct {
	ModelImageURL   string `json:"model_image_url" validate:"required,http_url"`
	GarmentImageURL string `json:"garment_image_url" validate:"required,http_url"`
	Prompt          string `json:"prompt" validate:"required,max=2000"`
	NegativePrompt  string `json:"negative_prompt,omitempty" validate:"max=2000"`
	Scheduler       string `json:"scheduler" validate:"oneof=ddim dpmpp heun"`
}

// Result is what a backend returns for a finished generation.
type Result struct {
	RequestID        string    `json:"request_id"`
	ImageURL         string    `json:"image_url"`
	InferenceSeconds float64   `json:"inference_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// Generator produces a try-on image for a payload.
type Generator interface {
	Generate(ctx context.Context, p Payload) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Payload) (Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, p Payload) (Result, error) { return f(ctx, p) }

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every rejected field of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrInvalidPayload.
func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Normalize trims the text fields and applies the default scheduler.
func (p Payload) Normalize() Payload {
	p.ModelImageURL = strings.TrimSpace(p.ModelImageURL)
	p.GarmentImageURL = strings.TrimSpace(p.GarmentImageURL)
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.NegativePrompt = strings.TrimSpace(p.NegativePrompt)
	p.Scheduler = strings.ToLower(strings.TrimSpace(p.Scheduler))
	if p.Scheduler == "" {
		p.Scheduler = DefaultScheduler
	}
	return p
}

// Validate normalizes p and checks it. The returned error is a
// *ValidationError when fields are rejected.
func (p Payload) Validate() (Payload, error) {
	p = p.Normalize()
	err := validatorInstance().Struct(p)
	if err == nil {
		return p, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return p, out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "http_url":
		return "must be an http(s) URL"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "failed " + fe.Tag() + " check"
}
