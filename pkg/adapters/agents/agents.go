package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
)

var (
	// opening fence with an optional language tag, e.g. ```python
	leadingFence  = regexp.MustCompile("^```[a-zA-Z0-9_+#-]*\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")

	languageLine = regexp.MustCompile(`(?i)language\W*?\s*[:\-]?\s*\**\s*([A-Za-z0-9+#]+)`)
	goalLine     = regexp.MustCompile(`(?im)^\W*functionality[ _]goal\W*?\s*[:\-]?\s*\**\s*(.+)$`)
)

// Options configures the completion requests sent by the text stages
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Agents is the LLM-backed implementation of ports.Agents
type Agents struct {
	llm      ports.LLMClient
	executor *Executor
	opts     Options
	logger   *zap.Logger
}

var _ ports.Agents = (*Agents)(nil)

// New creates the default stage agents
func New(llm ports.LLMClient, executor *Executor, opts Options, logger *zap.Logger) *Agents {
	if executor == nil {
		executor = NewExecutor(ExecutorConfig{})
	}
	return &Agents{
		llm:      llm,
		executor: executor,
		opts:     opts,
		logger:   logger,
	}
}

// Decompose asks for a structured specification of the request. An empty
// Language in the returned spec means the language could not be resolved.
func (a *Agents) Decompose(ctx context.Context, request string) (*domain.TaskSpec, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(decomposePrompt, request))
	if err != nil {
		return nil, usage, fmt.Errorf("decompose: %w", err)
	}

	spec := ParseTaskSpec(text)
	if spec.Goal == "" {
		spec.Goal = strings.TrimSpace(request)
	}

	a.logger.Debug("decomposed request",
		zap.String("language", spec.Language),
		zap.Int("inputs", len(spec.Inputs)),
		zap.Int("outputs", len(spec.Outputs)))

	return spec, usage, nil
}

// Generate asks for code implementing the specification
func (a *Agents) Generate(ctx context.Context, language, taskSpec string) (string, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(generatePrompt, language, taskSpec))
	if err != nil {
		return "", usage, fmt.Errorf("generate: %w", err)
	}
	return text, usage, nil
}

// Extract asks for the first code block of the generated text and strips any
// remaining markdown fence.
func (a *Agents) Extract(ctx context.Context, raw string) (string, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(extractPrompt, raw))
	if err != nil {
		return "", usage, fmt.Errorf("extract: %w", err)
	}
	return StripFences(text), usage, nil
}

// Review asks for a code review of the extracted code
func (a *Agents) Review(ctx context.Context, language, code string) (string, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(reviewPrompt, language, code))
	if err != nil {
		return "", usage, fmt.Errorf("review: %w", err)
	}
	return strings.TrimSpace(text), usage, nil
}

// Classify asks whether the review is an approval
func (a *Agents) Classify(ctx context.Context, review string) (bool, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(classifyPrompt, review))
	if err != nil {
		return false, usage, fmt.Errorf("classify: %w", err)
	}
	return ParseVerdict(text), usage, nil
}

// GenerateTests asks for test code covering the extracted code
func (a *Agents) GenerateTests(ctx context.Context, language, code string) (string, domain.Usage, error) {
	text, usage, err := a.complete(ctx, fmt.Sprintf(testGenPrompt, language, code))
	if err != nil {
		return "", usage, fmt.Errorf("testgen: %w", err)
	}
	return strings.TrimSpace(text), usage, nil
}

// Execute runs the code locally. It reports no usage.
func (a *Agents) Execute(ctx context.Context, language, code string) (string, domain.Usage, error) {
	return a.executor.Run(ctx, language, code), domain.Usage{}, nil
}

func (a *Agents) complete(ctx context.Context, prompt string) (string, domain.Usage, error) {
	resp, err := a.llm.GenerateCompletion(ctx, &domain.LLMRequest{
		Model:       a.opts.Model,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		return "", domain.Usage{}, err
	}
	return resp.Content, resp.Usage, nil
}

// StripFences removes a leading ```lang fence and a trailing ``` fence
func StripFences(text string) string {
	code := strings.TrimSpace(text)
	code = leadingFence.ReplaceAllString(code, "")
	code = trailingFence.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// ParseVerdict reports whether a classifier answer is an approval. Both the
// JSON form {"review_passed": true} and a bare boolean are accepted.
func ParseVerdict(text string) bool {
	return strings.Contains(strings.ToLower(text), "true")
}

type taskSpecJSON struct {
	Language    string          `json:"language"`
	Goal        string          `json:"functionality_goal"`
	Inputs      json.RawMessage `json:"inputs"`
	Outputs     json.RawMessage `json:"outputs"`
	Constraints json.RawMessage `json:"constraints"`
}

// ParseTaskSpec reads a decomposition answer. The JSON object is preferred;
// when it is missing or malformed the language and goal are taken from
// "Language: X" and "Functionality Goal: ..." lines.
func ParseTaskSpec(text string) *domain.TaskSpec {
	spec := &domain.TaskSpec{}

	if body, ok := jsonObject(text); ok {
		var raw taskSpecJSON
		if err := json.Unmarshal([]byte(body), &raw); err == nil {
			spec.Language = strings.TrimSpace(raw.Language)
			spec.Goal = strings.TrimSpace(raw.Goal)
			spec.Inputs = stringList(raw.Inputs)
			spec.Outputs = stringList(raw.Outputs)
			spec.Constraints = stringList(raw.Constraints)
		}
	}

	if spec.Language == "" {
		if m := languageLine.FindStringSubmatch(text); m != nil {
			spec.Language = m[1]
		}
	}
	if spec.Goal == "" {
		if m := goalLine.FindStringSubmatch(text); m != nil {
			spec.Goal = strings.Trim(strings.TrimSpace(m[1]), " *:\"")
		}
	}
	return spec
}

func jsonObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// stringList accepts either an array of strings or a single string
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}
