package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/aescanero/codeforge/internal/application/pipeline"
	"github.com/spf13/cobra"
)

func newStagesCmd() *cobra.Command {
	var (
		profilePath string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages, the default order and the concurrent group",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile(profilePath)
			if err != nil {
				return err
			}
			registry, err := newRegistry(nil, profile)
			if err != nil {
				return err
			}
			if asJSON {
				return writeStagesJSON(cmd.OutOrStdout(), registry)
			}
			return writeStages(cmd.OutOrStdout(), registry)
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", os.Getenv("PIPELINE_PROFILE"), "pipeline profile YAML file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}

func writeStages(out io.Writer, registry *pipeline.Registry) error {
	fmt.Fprintf(out, "Default order: %s\n", strings.Join(registry.DefaultOrder(), " -> "))

	g := registry.ConcurrentGroup()
	branches := make([]string, 0, len(g.Branches))
	for _, b := range g.Branches {
		branches = append(branches, "["+strings.Join(b, ", ")+"]")
	}
	fmt.Fprintf(out, "Concurrent:    after %s run %s, join at %s\n\n", g.After, strings.Join(branches, " | "), g.Join)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tREQUIRES\tWRITES\tLANGUAGES\tDESCRIPTION")
	for _, s := range registry.Stages() {
		langs := "any"
		if len(s.Languages) > 0 {
			langs = strings.Join(s.Languages, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, joinFields(s.Requires), joinFields(s.Writes), langs, s.Description)
	}
	return w.Flush()
}

func writeStagesJSON(out io.Writer, registry *pipeline.Registry) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		DefaultOrder    []string                 `json:"default_order"`
		Stages          []pipeline.StageSpec     `json:"stages"`
		ConcurrentGroup pipeline.ConcurrentGroup `json:"concurrent_group"`
	}{registry.DefaultOrder(), registry.Stages(), registry.ConcurrentGroup()})
}

func joinFields[T ~string](fields []T) string {
	if len(fields) == 0 {
		return "-"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
