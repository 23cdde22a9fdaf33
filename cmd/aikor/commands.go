package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/workwise/aikor"
	"github.com/workwise/aikor/batch"
	"github.com/workwise/aikor/rules"
)

func (a *app) parseCmd() *cobra.Command {
	var format string
	var save bool
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a document and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			if save {
				id, err := e.Ingest(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "document %d\n", id)
				return nil
			}
			doc, err := e.Parse(ctx, args[0])
			if err != nil {
				return err
			}
			return e.Export(cmd.OutOrStdout(), doc, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, markdown, chunks, sections, context)")
	cmd.Flags().BoolVar(&save, "save", false, "store the document and print its id instead")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var codes []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check <file|document-id>",
		Short: "Check a document and store the numbered errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			id, err := resolveDocument(ctx, e, args[0])
			if err != nil {
				return err
			}
			var opts []aikor.CheckOption
			if len(codes) > 0 {
				opts = append(opts, aikor.WithRules(codes...))
			}
			rep, err := e.Check(ctx, id, opts...)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"document_id": id, "report": rep})
			}
			printReport(cmd.OutOrStdout(), id, rep)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&codes, "rules", nil, "rule codes to run, in order (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// resolveDocument accepts a stored document id or a file path to ingest.
func resolveDocument(ctx context.Context, e aikor.Engine, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if _, statErr := os.Stat(arg); statErr != nil {
			return id, nil
		}
	}
	return e.Ingest(ctx, arg)
}

func printReport(w io.Writer, id int64, rep rules.Report) {
	fmt.Fprintf(w, "document %d: rating %.2f, %d errors\n", id, rep.Rating, rep.TotalErrors)
	for _, res := range rep.Results {
		status := "ok"
		if !res.Passed {
			status = fmt.Sprintf("%d errors", res.ErrorCount())
		}
		fmt.Fprintf(w, "  %-12s %-28s %s\n", res.RuleCode, res.RuleName, status)
	}
	for _, n := range rules.Number(rep.Results) {
		fmt.Fprintf(w, "%3d. page %d [%s] %s\n", n.Number, n.PageNumber, n.Severity, n.Message)
	}
}

func (a *app) exportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Parse a document and write it in an export format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			doc, err := e.Parse(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return e.Export(cmd.OutOrStdout(), doc, format)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := e.Export(f, doc, format); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "export format (text, json, markdown, chunks, sections, context)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var recursive, quiet bool
	var exts []string
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Parse every document in a directory in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			var progress batch.ProgressFunc
			if !quiet {
				progress = func(completed, total int, path string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", completed, total, path)
				}
			}
			results, err := e.BatchDirectory(cmd.Context(), args[0], exts, recursive, progress)
			if err != nil {
				return err
			}

			paths := make([]string, 0, len(results))
			for p := range results {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			failed := 0
			w := cmd.OutOrStdout()
			for _, p := range paths {
				r := results[p]
				if !r.OK() {
					failed++
					fmt.Fprintf(w, "%s: %s\n", p, r.ErrorString())
					continue
				}
				fmt.Fprintf(w, "%s: %d pages, %d blocks\n", p, r.Doc.Metadata.TotalPages, r.Doc.TotalBlocks())
			}
			fmt.Fprintf(w, "%d files, %d failed\n", len(results), failed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "extensions to include (default .pdf,.docx)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var images []string
	cmd := &cobra.Command{
		Use:   "render <document-id>",
		Short: "Draw stored errors onto the page images of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			for i, img := range images {
				if err := e.SetPageImage(ctx, id, i+1, img); err != nil {
					return err
				}
			}
			results, err := e.Render(ctx, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range results {
				switch {
				case r.Err != nil:
					fmt.Fprintf(w, "page %d: kept %s (%v)\n", r.Number, r.Path, r.Err)
				case r.Rendered:
					fmt.Fprintf(w, "page %d: %s\n", r.Number, r.Path)
				default:
					fmt.Fprintf(w, "page %d: no errors, %s\n", r.Number, r.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&images, "images", nil, "page images in page order, recorded before rendering")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <document-id>",
		Short: "Write the stored check results as an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			if out == "" {
				out = fmt.Sprintf("report_%d.xlsx", id)
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := e.WriteReport(cmd.Context(), id, f); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default report_<id>.xlsx)")
	return cmd
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the parse cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached parse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()
			n, err := e.ClearCache()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
			return nil
		},
	})
	return cmd
}
