package domain

// Field names one slot of the pipeline state
type Field string

const (
	FieldLanguage        Field = "language"
	FieldTaskSpec        Field = "task_spec"
	FieldGeneratedCode   Field = "generated_code"
	FieldCleanCode       Field = "clean_code"
	FieldCodeReview      Field = "code_review"
	FieldReviewPassed    Field = "review_passed"
	FieldTestCode        Field = "test_code"
	FieldExecutionOutput Field = "execution_output"
)

// TaskSpec is the structured decomposition of a free-text request
type TaskSpec struct {
	Language    string   `json:"language"`
	Goal        string   `json:"functionality_goal"`
	Inputs      []string `json:"inputs,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// PipelineState is the working record threaded through the stages of one task.
// Request is set at submission and never changes; every other field is owned by
// exactly one stage.
type PipelineState struct {
	Request         string   `json:"request"`
	Language        string   `json:"language,omitempty"`
	TaskSpec        string   `json:"task_spec,omitempty"`
	Inputs          []string `json:"inputs,omitempty"`
	Outputs         []string `json:"outputs,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
	GeneratedCode   string   `json:"generated_code,omitempty"`
	CleanCode       string   `json:"clean_code,omitempty"`
	CodeReview      string   `json:"code_review,omitempty"`
	ReviewPassed    *bool    `json:"review_passed,omitempty"`
	TestCode        string   `json:"test_code,omitempty"`
	ExecutionOutput *string  `json:"execution_output,omitempty"`
}

// Has reports whether the field has been populated.
func (s PipelineState) Has(f Field) bool {
	switch f {
	case FieldLanguage:
		return s.Language != ""
	case FieldTaskSpec:
		return s.TaskSpec != ""
	case FieldGeneratedCode:
		return s.GeneratedCode != ""
	case FieldCleanCode:
		return s.CleanCode != ""
	case FieldCodeReview:
		return s.CodeReview != ""
	case FieldReviewPassed:
		return s.ReviewPassed != nil
	case FieldTestCode:
		return s.TestCode != ""
	case FieldExecutionOutput:
		return s.ExecutionOutput != nil
	}
	return false
}

// Merge copies the listed fields from update into the state. Fields not listed
// are left untouched, so a stage can only write what it declares.
func (s *PipelineState) Merge(update PipelineState, fields []Field) {
	for _, f := range fields {
		switch f {
		case FieldLanguage:
			s.Language = update.Language
			s.Inputs = update.Inputs
			s.Outputs = update.Outputs
			s.Constraints = update.Constraints
		case FieldTaskSpec:
			s.TaskSpec = update.TaskSpec
		case FieldGeneratedCode:
			s.GeneratedCode = update.GeneratedCode
		case FieldCleanCode:
			s.CleanCode = update.CleanCode
		case FieldCodeReview:
			s.CodeReview = update.CodeReview
		case FieldReviewPassed:
			s.ReviewPassed = update.ReviewPassed
		case FieldTestCode:
			s.TestCode = update.TestCode
		case FieldExecutionOutput:
			s.ExecutionOutput = update.ExecutionOutput
		}
	}
}

// Clone returns a deep copy of the state.
func (s PipelineState) Clone() PipelineState {
	c := s
	c.Inputs = append([]string(nil), s.Inputs...)
	c.Outputs = append([]string(nil), s.Outputs...)
	c.Constraints = append([]string(nil), s.Constraints...)
	if s.ReviewPassed != nil {
		v := *s.ReviewPassed
		c.ReviewPassed = &v
	}
	if s.ExecutionOutput != nil {
		v := *s.ExecutionOutput
		c.ExecutionOutput = &v
	}
	return c
}
