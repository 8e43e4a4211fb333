package orchestrator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/go-playground/validator/v10"
)

// MaxRequestBytes bounds the size of a free-text request.
const MaxRequestBytes = 32 * 1024

// ErrInvalidSubmission is returned when a submission fails validation.
var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is a request to run the pipeline
type Submission struct {
	Task       string   `json:"task" validate:"nonblank,maxbytes=32768"`
	StageOrder []string `json:"stage_order,omitempty" validate:"omitempty,max=16,dive,nonblank"`
}

// Validator checks submissions before a task is created
type Validator struct {
	registry *pipeline.Registry
	validate *validator.Validate
}

// NewValidator creates a submission validator bound to a stage registry
func NewValidator(registry *pipeline.Registry) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// max counts runes; the request limit is in bytes
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})

	return &Validator{
		registry: registry,
		validate: v,
	}
}

// Validate checks the submission fields and the stage ordering, returning the
// validated plan.
func (v *Validator) Validate(sub *Submission) (*pipeline.Plan, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: submission is nil", ErrInvalidSubmission)
	}

	if err := v.validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSubmission, describe(verrs[0]))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	plan, err := v.registry.Plan(sub.StageOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	return plan, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "Task":
		if fe.Tag() == "maxbytes" {
			return fmt.Sprintf("task exceeds %d bytes", MaxRequestBytes)
		}
		return "missing 'task' in request body"
	default:
		if fe.Tag() == "max" {
			return "stage_order has too many stages"
		}
		return "stage_order contains a blank stage name"
	}
}
