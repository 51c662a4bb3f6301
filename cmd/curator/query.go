package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/training-evidence-curator/internal/repository"
)

type queryOptions struct {
	domain string
	limit  int
	json   bool
}

func (o *queryOptions) bind(cmd *cobra.Command, withDomain bool) {
	if withDomain {
		cmd.Flags().StringVarP(&o.domain, "domain", "d", "", "restrict to one domain")
	}
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&o.json, "json", false, "output results as JSON")
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over curated papers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withPapers(cmd.Context(), root, func(ctx context.Context, papers *repository.PgPaperRepository) error {
				hits, err := papers.SearchText(ctx, query, opts.domain, opts.limit)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return writeHits(cmd.OutOrStdout(), hits, opts.json)
			})
		},
	}
	opts.bind(cmd, true)
	return cmd
}

func newSimilarCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "similar <paper-id>",
		Short: "List papers nearest to a stored paper's embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("paper id must be a UUID: %w", err)
			}
			return withPapers(cmd.Context(), root, func(ctx context.Context, papers *repository.PgPaperRepository) error {
				if _, err := papers.GetByID(ctx, id); err != nil {
					return err
				}
				hits, err := papers.SimilarTo(ctx, id, opts.limit)
				if err != nil {
					return fmt.Errorf("similarity query failed: %w", err)
				}
				return writeHits(cmd.OutOrStdout(), hits, opts.json)
			})
		},
	}
	opts.bind(cmd, false)
	return cmd
}

func withPapers(ctx context.Context, root *rootOptions, fn func(context.Context, *repository.PgPaperRepository) error) error {
	a, err := loadApp(root, "query")
	if err != nil {
		return err
	}
	var cl closers
	defer cl.close()

	db, err := connectDatabase(ctx, a, &cl)
	if err != nil {
		return err
	}
	return fn(ctx, repository.NewPgPaperRepository(db))
}

func writeHits(w io.Writer, hits []repository.ScoredPaper, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	rows := make([][]string, 0, len(hits))
	for i, h := range hits {
		p := h.Paper
		year := ""
		if p.Year > 0 {
			year = strconv.Itoa(p.Year)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(p.Title, 70),
			year,
			p.Domain,
			p.DOI,
			strconv.FormatFloat(h.Score, 'f', 3, 64),
			p.ID.String(),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("#", "Title", "Year", "Domain", "DOI", "Score", "ID").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
