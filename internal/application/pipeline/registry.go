// Package pipeline declares the CodeForge stages and derives execution graphs
// from stage orderings.
//
// Each stage is declared once with the pipeline fields it reads, requires and
// writes, its upstream stages and the languages it accepts. The driver uses the
// declarations to gate eligibility and the graph builder uses them to lay out
// the review/test-generation fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
)

// Stage names
const (
	StageDecompose = "decompose"
	StageGenerate  = "generate"
	StageExtract   = "extract"
	StageReview    = "review"
	StageClassify  = "classify"
	StageTestGen   = "testgen"
	StageExecute   = "execute"
)

// ErrPreconditionFailed is returned when a stage is invoked without a required input.
var ErrPreconditionFailed = errors.New("required input missing")

// DefaultOrder is the stage ordering used when a caller supplies none.
var DefaultOrder = []string{
	StageDecompose,
	StageGenerate,
	StageExtract,
	StageReview,
	StageClassify,
	StageTestGen,
	StageExecute,
}

// invokeFunc calls the collaborator behind a stage and returns the fields it wrote
// together with the text its cost is estimated from when no usage is reported.
type invokeFunc func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error)

// StageSpec declares a stage
type StageSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Reads       []domain.Field `json:"reads,omitempty"`
	Requires    []domain.Field `json:"requires,omitempty"`
	Writes      []domain.Field `json:"writes,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Languages   []string       `json:"languages,omitempty"`

	invoke invokeFunc
}

// AcceptsLanguage reports whether the stage is applicable to a language.
// A stage without a language set accepts every language.
func (s *StageSpec) AcceptsLanguage(language string) bool {
	if len(s.Languages) == 0 {
		return true
	}
	lang := normalizeLanguage(language)
	for _, l := range s.Languages {
		if normalizeLanguage(l) == lang {
			return true
		}
	}
	return false
}

// ConcurrentGroup declares stages that run concurrently after a common upstream
// stage and join into a common downstream stage. Each branch runs its members in order.
type ConcurrentGroup struct {
	After    string     `json:"after"`
	Branches [][]string `json:"branches"`
	Join     string     `json:"join"`
}

// Member reports which branch a stage belongs to.
func (g ConcurrentGroup) Member(stage string) (int, bool) {
	for b, branch := range g.Branches {
		for _, s := range branch {
			if s == stage {
				return b, true
			}
		}
	}
	return 0, false
}

// StageError wraps a failure returned by a stage collaborator
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Registry maps stage names to their declarations and invokes them.
// It never retries; retry policy belongs to the driver.
type Registry struct {
	agents       ports.Agents
	stages       map[string]*StageSpec
	defaultOrder []string
	group        ConcurrentGroup
}

// Option customizes a registry
type Option func(*Registry)

// WithDefaultOrder overrides the ordering used when a caller supplies none.
func WithDefaultOrder(order []string) Option {
	return func(r *Registry) {
		if len(order) > 0 {
			r.defaultOrder = append([]string(nil), order...)
		}
	}
}

// WithLanguages overrides the eligibility set of a stage.
func WithLanguages(stage string, languages []string) Option {
	return func(r *Registry) {
		if s, ok := r.stages[stage]; ok && len(languages) > 0 {
			s.Languages = append([]string(nil), languages...)
		}
	}
}

// NewRegistry creates the registry of CodeForge stages backed by the given agents
func NewRegistry(agents ports.Agents, opts ...Option) *Registry {
	r := &Registry{
		agents:       agents,
		stages:       make(map[string]*StageSpec),
		defaultOrder: append([]string(nil), DefaultOrder...),
		group: ConcurrentGroup{
			After:    StageExtract,
			Branches: [][]string{{StageReview, StageClassify}, {StageTestGen}},
			Join:     StageExecute,
		},
	}

	for _, s := range builtinStages() {
		spec := s
		r.stages[spec.Name] = &spec
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Stage returns the declaration of a stage.
func (r *Registry) Stage(name string) (*StageSpec, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// DefaultOrder returns the ordering used when a caller supplies none.
func (r *Registry) DefaultOrder() []string {
	return append([]string(nil), r.defaultOrder...)
}

// Stages returns every stage declaration in canonical order.
func (r *Registry) Stages() []StageSpec {
	specs := make([]StageSpec, 0, len(r.stages))
	for _, name := range DefaultOrder {
		if s, ok := r.stages[name]; ok {
			specs = append(specs, *s)
		}
	}
	return specs
}

// ConcurrentGroup returns the declared fan-out/join group.
func (r *Registry) ConcurrentGroup() ConcurrentGroup {
	return r.group
}

// Eligible reports whether a stage can run against the current state. A stage is
// ineligible when one of its optional reads is unset or the language is outside
// its eligibility set. The returned reason is meant for the task log.
func (r *Registry) Eligible(name string, st domain.PipelineState) (bool, string) {
	spec, ok := r.stages[name]
	if !ok {
		return false, fmt.Sprintf("unknown stage %q", name)
	}
	for _, f := range spec.Reads {
		if !st.Has(f) {
			return false, fmt.Sprintf("%s is not set", f)
		}
	}
	if st.Language != "" && !spec.AcceptsLanguage(st.Language) {
		return false, fmt.Sprintf("language %s is not supported", st.Language)
	}
	return true, ""
}

// Invoke runs a stage and returns the fields it wrote and the cost it reported.
// Only the fields declared in Writes are meaningful in the returned state.
func (r *Registry) Invoke(ctx context.Context, name string, st domain.PipelineState) (domain.PipelineState, int64, error) {
	spec, ok := r.stages[name]
	if !ok {
		return domain.PipelineState{}, 0, fmt.Errorf("%w: %s", domain.ErrUnknownStage, name)
	}

	for _, f := range spec.Requires {
		if st.Has(f) {
			continue
		}
		if f == domain.FieldLanguage {
			return domain.PipelineState{}, 0, fmt.Errorf("%w: stage %s needs it", domain.ErrLanguageUnresolved, name)
		}
		return domain.PipelineState{}, 0, fmt.Errorf("%w: stage %s needs %s", ErrPreconditionFailed, name, f)
	}

	update, usage, basis, err := spec.invoke(ctx, r.agents, st)

	cost := usage.Total()
	if cost == 0 {
		cost = EstimateTokens(basis)
	}

	if err != nil {
		return domain.PipelineState{}, cost, &StageError{Stage: name, Err: err}
	}
	return update, cost, nil
}

// EstimateTokens approximates the token count of a text at four characters per token.
func EstimateTokens(text string) int64 {
	n := int64(len(text) / 4)
	if n < 1 {
		return 1
	}
	return n
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

func builtinStages() []StageSpec {
	return []StageSpec{
		{
			Name:        StageDecompose,
			Description: "Decompose the request into language, goal, inputs, outputs and constraints",
			Writes:      []domain.Field{domain.FieldLanguage, domain.FieldTaskSpec},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				spec, usage, err := a.Decompose(ctx, st.Request)
				if err != nil {
					return domain.PipelineState{}, usage, st.Request, err
				}
				if spec == nil || strings.TrimSpace(spec.Language) == "" {
					return domain.PipelineState{}, usage, st.Request, domain.ErrLanguageUnresolved
				}
				return domain.PipelineState{
					Language:    strings.TrimSpace(spec.Language),
					TaskSpec:    spec.Goal,
					Inputs:      spec.Inputs,
					Outputs:     spec.Outputs,
					Constraints: spec.Constraints,
				}, usage, st.Request, nil
			},
		},
		{
			Name:        StageGenerate,
			Description: "Generate code for the task specification",
			Requires:    []domain.Field{domain.FieldLanguage},
			Writes:      []domain.Field{domain.FieldGeneratedCode},
			DependsOn:   []string{StageDecompose},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				spec := st.TaskSpec
				if spec == "" {
					spec = st.Request
				}
				raw, usage, err := a.Generate(ctx, st.Language, spec)
				return domain.PipelineState{GeneratedCode: raw}, usage, spec, err
			},
		},
		{
			Name:        StageExtract,
			Description: "Isolate the code payload from the generated text",
			Reads:       []domain.Field{domain.FieldGeneratedCode},
			Writes:      []domain.Field{domain.FieldCleanCode},
			DependsOn:   []string{StageGenerate},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				clean, usage, err := a.Extract(ctx, st.GeneratedCode)
				return domain.PipelineState{CleanCode: clean}, usage, st.GeneratedCode, err
			},
		},
		{
			Name:        StageReview,
			Description: "Review the extracted code",
			Requires:    []domain.Field{domain.FieldLanguage},
			Reads:       []domain.Field{domain.FieldCleanCode},
			Writes:      []domain.Field{domain.FieldCodeReview},
			DependsOn:   []string{StageExtract},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				review, usage, err := a.Review(ctx, st.Language, st.CleanCode)
				return domain.PipelineState{CodeReview: review}, usage, st.CleanCode, err
			},
		},
		{
			Name:        StageClassify,
			Description: "Decide whether the review approves the code",
			Reads:       []domain.Field{domain.FieldCodeReview},
			Writes:      []domain.Field{domain.FieldReviewPassed},
			DependsOn:   []string{StageReview},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				passed, usage, err := a.Classify(ctx, st.CodeReview)
				return domain.PipelineState{ReviewPassed: &passed}, usage, st.CodeReview, err
			},
		},
		{
			Name:        StageTestGen,
			Description: "Generate tests for the extracted code",
			Requires:    []domain.Field{domain.FieldLanguage},
			Reads:       []domain.Field{domain.FieldCleanCode},
			Writes:      []domain.Field{domain.FieldTestCode},
			DependsOn:   []string{StageExtract},
			Languages:   []string{"python", "py", "javascript", "js"},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				tests, usage, err := a.GenerateTests(ctx, st.Language, st.CleanCode)
				return domain.PipelineState{TestCode: tests}, usage, st.CleanCode, err
			},
		},
		{
			Name:        StageExecute,
			Description: "Run the extracted code and capture its output",
			Requires:    []domain.Field{domain.FieldLanguage},
			Reads:       []domain.Field{domain.FieldCleanCode},
			Writes:      []domain.Field{domain.FieldExecutionOutput},
			DependsOn:   []string{StageClassify, StageTestGen},
			Languages:   []string{"python", "py"},
			invoke: func(ctx context.Context, a ports.Agents, st domain.PipelineState) (domain.PipelineState, domain.Usage, string, error) {
				out, usage, err := a.Execute(ctx, st.Language, st.CleanCode)
				return domain.PipelineState{ExecutionOutput: &out}, usage, st.CleanCode, err
			},
		},
	}
}
