package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aescanero/codeforge/internal/application/orchestrator"
	"github.com/aescanero/codeforge/internal/config"
	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		task   string
		stages []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one task synchronously with in-memory backends and print the result",
		Example: `  codeforge run --task "sum the even numbers of a list in python"
  codeforge run --task "reverse a string in go" --stages decompose,generate,extract`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.OutOrStdout(), task, stages)
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "free-text description of the code to produce")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "comma-separated stage order (default: the registry default order)")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func runOnce(out io.Writer, task string, stages []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Storage.Backend = "memory"
	cfg.Events.Backend = "memory"
	cfg.Workers.PoolSize = 1

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.shutdown(context.Background())

	if err := a.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	// subscribe before submitting so no event is missed
	events := make(chan domain.Event, 256)
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	err = a.eventBus.Subscribe(subCtx, domain.TaskEventsTopic, func(ctx context.Context, event domain.Event) error {
		select {
		case events <- event:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to task events: %w", err)
	}

	submitted, err := a.manager.Submit(ctx, &orchestrator.Submission{Task: task, StageOrder: stages})
	if err != nil {
		return err
	}

	if err := follow(ctx, out, events, submitted.ID); err != nil {
		a.pool.Shutdown(context.Background())
	}

	final, err := a.manager.Get(context.Background(), submitted.ID)
	if err != nil {
		return err
	}
	printResult(out, final)

	if final.Status != domain.TaskStatusComplete {
		return fmt.Errorf("task %s ended in %s", final.ID, final.Status)
	}
	return nil
}

// follow prints the task log lines until the task finishes or ctx is cancelled
func follow(ctx context.Context, out io.Writer, events <-chan domain.Event, taskID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-events:
			if event.TaskID != taskID {
				continue
			}
			switch event.Type {
			case domain.EventTypeTaskLog:
				if line, ok := event.Data["line"].(string); ok {
					fmt.Fprintln(out, line)
				}
			case domain.EventTypeTaskCompleted, domain.EventTypeTaskFailed:
				return nil
			}
		}
	}
}

func printResult(out io.Writer, task *domain.Task) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Task:     %s\n", task.ID)
	fmt.Fprintf(out, "Status:   %s\n", task.Status)

	res := task.Result
	if res == nil {
		return
	}
	if res.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", res.Error)
	}
	fmt.Fprintf(out, "Language: %s\n", res.Language)
	fmt.Fprintf(out, "Spec:     %s\n", res.TaskSpec)
	if res.CodeFile != "" {
		fmt.Fprintf(out, "Code:     %s\n", res.CodeFile)
	}
	if res.TestFile != "" {
		fmt.Fprintf(out, "Tests:    %s\n", res.TestFile)
	}
	fmt.Fprintf(out, "Attempts: %d (review passed: %t)\n", res.Attempts, res.ReviewPassed)
	fmt.Fprintf(out, "Tokens:   %d used, %d of %d remaining\n", res.TokensUsed, res.TokensRemaining, res.TokenLimit)
	if res.Review != "" {
		fmt.Fprintf(out, "\nReview:\n%s\n", strings.TrimSpace(res.Review))
	}
	if res.ExecutionOutput != nil {
		fmt.Fprintf(out, "\nExecution output:\n%s\n", *res.ExecutionOutput)
	}
}
