package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aescanero/codeforge/internal/application/accounting"
	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/aescanero/codeforge/internal/application/tasks"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxGenerationAttempts bounds the generate/extract/review loop.
	MaxGenerationAttempts = 3

	// minCodeLength is the shortest extraction accepted as code.
	minCodeLength = 5

	summaryLength = 100
)

// Driver runs the stages of one task from pending to a terminal status.
type Driver struct {
	registry    *pipeline.Registry
	tasks       *tasks.Store
	ledger      *accounting.Ledger
	artifacts   ports.ArtifactStore
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
	logger      *zap.Logger
	taskTimeout time.Duration
}

// NewDriver creates a pipeline driver. A zero taskTimeout runs tasks without a deadline.
func NewDriver(
	registry *pipeline.Registry,
	store *tasks.Store,
	ledger *accounting.Ledger,
	artifacts ports.ArtifactStore,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	taskTimeout time.Duration,
) *Driver {
	return &Driver{
		registry:    registry,
		tasks:       store,
		ledger:      ledger,
		artifacts:   artifacts,
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/aescanero/codeforge/orchestrator"),
		logger:      logger,
		taskTimeout: taskTimeout,
	}
}

// run is the mutable state of one task execution
type run struct {
	d        *Driver
	taskID   string
	plan     *pipeline.Plan
	state    domain.PipelineState
	attempts int
	passed   bool
}

// Run executes a task. Stage failures end the task in error and are not returned;
// the returned error only reports that the task could not be driven at all.
func (d *Driver) Run(ctx context.Context, taskID string) (err error) {
	// task records must still be written after ctx is cancelled
	storeCtx := context.WithoutCancel(ctx)

	task, err := d.tasks.Get(storeCtx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidTransition, taskID, task.Status)
	}

	if d.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.taskTimeout)
		defer cancel()
	}

	ctx, span := d.tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.StringSlice("task.stage_order", task.StageOrder),
	))
	defer span.End()

	startedAt := time.Now()
	r := &run{d: d, taskID: taskID, state: task.State.Clone()}

	if err := d.tasks.SetStatus(storeCtx, taskID, domain.TaskStatusRunning); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	r.log(storeCtx, "Task started. Stage order: %s", strings.Join(task.StageOrder, " -> "))

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("task panicked",
				zap.String("task_id", taskID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			r.fail(storeCtx, span, startedAt, fmt.Errorf("internal error: %v", p))
		}
	}()

	if err := r.execute(ctx, task.StageOrder); err != nil {
		r.fail(storeCtx, span, startedAt, err)
		return nil
	}

	if err := r.complete(storeCtx, startedAt); err != nil {
		r.fail(storeCtx, span, startedAt, err)
		return nil
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// execute walks the stage ordering
func (r *run) execute(ctx context.Context, order []string) error {
	plan, err := r.d.registry.Plan(order)
	if err != nil {
		return err
	}
	r.plan = plan
	storeCtx := context.WithoutCancel(ctx)

	for _, w := range plan.Warnings {
		r.log(storeCtx, "Warning: %s", w)
	}

	for _, stage := range plan.Order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("task interrupted before %s: %w", stage, err)
		}

		switch stage {
		case pipeline.StageGenerate:
			if err := r.generationLoop(ctx); err != nil {
				return err
			}

		case pipeline.StageExtract, pipeline.StageReview, pipeline.StageClassify, pipeline.StageTestGen:
			// run inside the generation loop
			if !plan.Contains(pipeline.StageGenerate) {
				r.log(storeCtx, "%s: skipped, no generation stage in the order", stage)
			}

		default:
			if _, err := r.runStage(ctx, stage); err != nil {
				return err
			}
		}
	}

	return nil
}

// generationLoop generates, extracts and reviews code until the review passes
// or the attempts are exhausted. Exhaustion is not fatal: the run continues with
// the last attempt that got past extraction.
func (r *run) generationLoop(ctx context.Context) error {
	storeCtx := context.WithoutCancel(ctx)
	group := r.d.registry.ConcurrentGroup()
	decides := r.plan.Contains(pipeline.StageClassify) && r.plan.Contains(pipeline.StageReview)

	var kept *domain.PipelineState
	keptAttempt := 0

	for attempt := 1; attempt <= MaxGenerationAttempts; attempt++ {
		r.attempts = attempt
		r.resetAttempt()

		r.log(storeCtx, "%s: starting code generation (attempt %d/%d)", pipeline.StageGenerate, attempt, MaxGenerationAttempts)
		ran, err := r.runStage(ctx, pipeline.StageGenerate)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			r.log(storeCtx, "%s: generation failed: %v", pipeline.StageGenerate, err)
			r.exhausted(storeCtx, attempt)
			continue
		}
		if ran {
			r.log(storeCtx, "%s: generated %d lines of %s code",
				pipeline.StageGenerate, countLines(r.state.GeneratedCode), r.state.Language)
		}

		if !r.plan.Contains(pipeline.StageExtract) {
			r.log(storeCtx, "%s: not in the order, generated text is used as is", pipeline.StageExtract)
			break
		}

		if _, err := r.runStage(ctx, pipeline.StageExtract); err != nil {
			if isFatal(ctx, err) {
				return err
			}
			r.log(storeCtx, "%s: extraction failed: %v", pipeline.StageExtract, err)
			r.exhausted(storeCtx, attempt)
			continue
		}
		if len(strings.TrimSpace(r.state.CleanCode)) < minCodeLength {
			r.log(storeCtx, "%s: code extraction failed, retrying", pipeline.StageExtract)
			r.exhausted(storeCtx, attempt)
			continue
		}
		r.log(storeCtx, "%s: code extracted successfully", pipeline.StageExtract)

		if err := r.runBranches(ctx, group); err != nil {
			return err
		}
		snapshot := r.state.Clone()
		kept, keptAttempt = &snapshot, attempt

		if !decides {
			// nothing decides the review, accept the extraction
			r.passed = false
			break
		}

		r.passed = r.state.ReviewPassed != nil && *r.state.ReviewPassed
		if r.passed {
			r.log(storeCtx, "%s: review passed on attempt %d", pipeline.StageReview, attempt)
			break
		}

		r.log(storeCtx, "%s: review failed. Issues: %s", pipeline.StageReview, summarize(r.state.CodeReview))
		r.exhausted(storeCtx, attempt)
	}

	if !r.passed && kept != nil && keptAttempt != r.attempts {
		r.restoreAttempt(*kept)
		r.log(storeCtx, "%s: using the code from attempt %d", pipeline.StageGenerate, keptAttempt)
		if err := r.d.tasks.SetState(storeCtx, r.taskID, r.state); err != nil {
			return err
		}
	}

	r.d.metrics.RecordGenerationAttempts(r.attempts, r.passed)
	return nil
}

func (r *run) exhausted(ctx context.Context, attempt int) {
	if attempt == MaxGenerationAttempts {
		r.log(ctx, "%s: max attempts reached, proceeding with last generated code", pipeline.StageGenerate)
	}
}

// resetAttempt clears the fields produced inside the loop so the result always
// describes the last attempt.
func (r *run) resetAttempt() {
	r.state.GeneratedCode = ""
	r.state.CleanCode = ""
	r.state.CodeReview = ""
	r.state.ReviewPassed = nil
	r.state.TestCode = ""
	r.passed = false
}

// restoreAttempt brings back the fields produced by an earlier attempt
func (r *run) restoreAttempt(from domain.PipelineState) {
	r.state.GeneratedCode = from.GeneratedCode
	r.state.CleanCode = from.CleanCode
	r.state.CodeReview = from.CodeReview
	r.state.ReviewPassed = from.ReviewPassed
	r.state.TestCode = from.TestCode
}

// runBranches runs the branches of the concurrent group over a snapshot of the
// state and merges each branch's writes once both have finished.
func (r *run) runBranches(ctx context.Context, group pipeline.ConcurrentGroup) error {
	snapshot := r.state.Clone()
	results := make([]domain.PipelineState, len(group.Branches))
	writes := make([][]domain.Field, len(group.Branches))

	g, gctx := errgroup.WithContext(ctx)
	for b, branch := range group.Branches {
		stages := make([]string, 0, len(branch))
		for _, s := range branch {
			if r.plan.Contains(s) {
				stages = append(stages, s)
			}
		}
		if len(stages) == 0 {
			continue
		}

		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("internal error in %s: %v", strings.Join(stages, "/"), p)
				}
			}()

			local := snapshot.Clone()
			for _, s := range stages {
				update, ran, err := r.invoke(gctx, s, local)
				if err != nil {
					return err
				}
				if !ran {
					continue
				}
				spec, _ := r.d.registry.Stage(s)
				local.Merge(update, spec.Writes)
				writes[b] = append(writes[b], spec.Writes...)
			}
			results[b] = local
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for b := range group.Branches {
		r.state.Merge(results[b], writes[b])
	}
	return r.d.tasks.SetState(context.WithoutCancel(ctx), r.taskID, r.state)
}

// runStage invokes one stage against the run state and merges its writes.
// It reports whether the stage ran or was skipped.
func (r *run) runStage(ctx context.Context, stage string) (bool, error) {
	update, ran, err := r.invoke(ctx, stage, r.state)
	if err != nil || !ran {
		return ran, err
	}

	spec, _ := r.d.registry.Stage(stage)
	r.state.Merge(update, spec.Writes)

	if stage == pipeline.StageDecompose {
		r.log(context.WithoutCancel(ctx), "%s: extracted language=%s, goal=%q, inputs=%v, outputs=%v",
			stage, r.state.Language, r.state.TaskSpec, r.state.Inputs, r.state.Outputs)
	}

	return true, r.d.tasks.SetState(context.WithoutCancel(ctx), r.taskID, r.state)
}

// invoke gates a stage on eligibility, calls it through the registry and charges
// its cost. It does not touch the run state, so branches may call it concurrently.
func (r *run) invoke(ctx context.Context, stage string, st domain.PipelineState) (domain.PipelineState, bool, error) {
	storeCtx := context.WithoutCancel(ctx)

	spec, ok := r.d.registry.Stage(stage)
	if !ok {
		return domain.PipelineState{}, false, fmt.Errorf("%w: %s", domain.ErrUnknownStage, stage)
	}
	if requiresLanguage(spec) && !st.Has(domain.FieldLanguage) {
		return domain.PipelineState{}, false, fmt.Errorf("%w: stage %s needs it", domain.ErrLanguageUnresolved, stage)
	}

	if ok, reason := r.d.registry.Eligible(stage, st); !ok {
		r.log(storeCtx, "%s: skipped, %s", stage, reason)
		r.d.metrics.RecordStageExecuted(stage, "skipped", 0)
		return domain.PipelineState{}, false, nil
	}

	ctx, span := r.d.tracer.Start(ctx, "stage."+stage, trace.WithAttributes(
		attribute.String("task.id", r.taskID),
		attribute.String("stage.name", stage),
		attribute.Int("stage.attempt", r.attempts),
	))
	defer span.End()

	r.d.tasks.PublishStage(storeCtx, r.taskID, stage, domain.EventTypeStageStarted, map[string]interface{}{
		"attempt": r.attempts,
	})

	start := time.Now()
	update, cost, err := r.d.registry.Invoke(ctx, stage, st)
	duration := time.Since(start)

	r.charge(storeCtx, stage, cost)
	span.SetAttributes(attribute.Int64("stage.cost", cost))

	status := "completed"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.d.metrics.RecordStageExecuted(stage, status, duration)

	data := map[string]interface{}{
		"status":      status,
		"cost":        cost,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	r.d.tasks.PublishStage(storeCtx, r.taskID, stage, domain.EventTypeStageFinished, data)

	if err != nil {
		return domain.PipelineState{}, true, err
	}

	r.logOutcome(storeCtx, stage, update)
	return update, true, nil
}

func requiresLanguage(spec *pipeline.StageSpec) bool {
	for _, f := range spec.Requires {
		if f == domain.FieldLanguage {
			return true
		}
	}
	return false
}

// logOutcome appends the per-stage summary line to the task log
func (r *run) logOutcome(ctx context.Context, stage string, update domain.PipelineState) {
	switch stage {
	case pipeline.StageReview:
		r.log(ctx, "%s: review received. Summary: %s", stage, summarize(update.CodeReview))
	case pipeline.StageClassify:
		verdict := "failed"
		if update.ReviewPassed != nil && *update.ReviewPassed {
			verdict = "passed"
		}
		r.log(ctx, "%s: review %s", stage, verdict)
	case pipeline.StageTestGen:
		r.log(ctx, "%s: test code generated (%d lines)", stage, countLines(update.TestCode))
	case pipeline.StageExecute:
		if update.ExecutionOutput != nil {
			r.log(ctx, "%s: execution output: %s", stage, summarize(*update.ExecutionOutput))
		}
	}
}

// charge records a stage cost against the ledger and the task
func (r *run) charge(ctx context.Context, stage string, cost int64) {
	if cost <= 0 {
		return
	}
	if err := r.d.ledger.Charge(r.taskID, cost); err != nil {
		r.d.logger.Error("failed to charge ledger",
			zap.String("task_id", r.taskID),
			zap.String("stage", stage),
			zap.Error(err))
		return
	}
	if err := r.d.tasks.AddTokens(ctx, r.taskID, cost); err != nil {
		r.d.logger.Error("failed to record task tokens",
			zap.String("task_id", r.taskID),
			zap.Error(err))
	}

	r.d.metrics.RecordTokens(stage, cost)
	snap := r.d.ledger.Snapshot()
	r.d.metrics.RecordLedger(snap.Used, snap.Remaining)
}

// complete persists artifacts and records the successful result
func (r *run) complete(ctx context.Context, startedAt time.Time) error {
	result := r.result()

	if r.d.artifacts != nil {
		if result.Code != "" {
			path, err := r.d.artifacts.WriteCode(r.taskID, r.state.Language, result.Code)
			if err != nil {
				return fmt.Errorf("failed to save code: %w", err)
			}
			result.CodeFile = path
		}
		if result.TestCode != "" {
			path, err := r.d.artifacts.WriteTests(r.taskID, r.state.Language, result.TestCode)
			if err != nil {
				return fmt.Errorf("failed to save test code: %w", err)
			}
			result.TestFile = path
		}
		r.log(ctx, "Files saved: %s %s", result.CodeFile, result.TestFile)

		path, err := r.d.artifacts.AppendRunLog(r.taskID, r.finalBlock(result))
		if err != nil {
			return fmt.Errorf("failed to append run log: %w", err)
		}
		result.LogsFile = path
	}

	r.log(ctx, "Task complete.")

	if _, err := r.d.tasks.Finish(ctx, r.taskID, domain.TaskStatusComplete, result); err != nil {
		return err
	}

	r.d.metrics.RecordTaskCompleted(string(domain.TaskStatusComplete), time.Since(startedAt))
	r.d.logger.Info("task completed",
		zap.String("task_id", r.taskID),
		zap.String("language", result.Language),
		zap.Int("attempts", result.Attempts),
		zap.Bool("review_passed", result.ReviewPassed),
		zap.Int64("tokens_used", result.TokensUsed))
	return nil
}

// fail ends the task in error. A task already in a terminal state is left as is.
func (r *run) fail(ctx context.Context, span trace.Span, startedAt time.Time, cause error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	r.log(ctx, "Error: %v", cause)

	result := r.result()
	result.Error = cause.Error()

	if _, err := r.d.tasks.Finish(ctx, r.taskID, domain.TaskStatusError, result); err != nil {
		if !errors.Is(err, domain.ErrTerminalState) {
			r.d.logger.Error("failed to record task failure",
				zap.String("task_id", r.taskID),
				zap.Error(err))
		}
		return
	}

	r.d.metrics.RecordTaskCompleted(string(domain.TaskStatusError), time.Since(startedAt))
	r.d.logger.Warn("task failed",
		zap.String("task_id", r.taskID),
		zap.Error(cause))
}

func (r *run) result() *domain.TaskResult {
	code := r.state.CleanCode
	if code == "" {
		code = r.state.GeneratedCode
	}

	snap := r.d.ledger.Snapshot()
	result := &domain.TaskResult{
		Language:        r.state.Language,
		TaskSpec:        r.state.TaskSpec,
		Code:            code,
		TestCode:        r.state.TestCode,
		Review:          r.state.CodeReview,
		ReviewPassed:    r.state.ReviewPassed != nil && *r.state.ReviewPassed,
		Attempts:        r.attempts,
		TokensUsed:      r.d.ledger.TaskUsed(r.taskID),
		TokensRemaining: snap.Remaining,
		TokenLimit:      snap.Limit,
	}
	if r.state.ExecutionOutput != nil {
		out := *r.state.ExecutionOutput
		result.ExecutionOutput = &out
	}
	return result
}

// finalBlock renders the run summary appended to the cumulative log file
func (r *run) finalBlock(result *domain.TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Task %s (%s) ===\n", r.taskID, time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Language: %s\n", result.Language)
	fmt.Fprintf(&b, "Task: %s\n", result.TaskSpec)
	fmt.Fprintf(&b, "Attempts: %d, review passed: %t\n", result.Attempts, result.ReviewPassed)
	fmt.Fprintf(&b, "Review:\n%s\n", result.Review)
	if result.ExecutionOutput != nil {
		fmt.Fprintf(&b, "Execution output:\n%s\n", *result.ExecutionOutput)
	}
	return b.String()
}

func (r *run) log(ctx context.Context, format string, args ...interface{}) {
	if err := r.d.tasks.AppendLog(ctx, r.taskID, fmt.Sprintf(format, args...)); err != nil {
		r.d.logger.Error("failed to append task log",
			zap.String("task_id", r.taskID),
			zap.Error(err))
	}
}

// isFatal reports whether a stage error must end the task instead of consuming
// a generation attempt.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, domain.ErrLanguageUnresolved) ||
		errors.Is(err, pipeline.ErrPreconditionFailed)
}

func summarize(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= summaryLength {
		return text
	}
	return text[:summaryLength] + "..."
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
