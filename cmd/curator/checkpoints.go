package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/helixir/training-evidence-curator/internal/checkpoint"
)

func newCheckpointsCmd(root *rootOptions) *cobra.Command {
	var domainName string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect or discard stage checkpoints",
	}
	cmd.PersistentFlags().StringVarP(&domainName, "domain", "d", "", "limit to one domain")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCheckpoints(root)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), domainName)
			if err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}
			writeCheckpoints(cmd.OutOrStdout(), entries)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard checkpoints so the next run starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCheckpoints(root)
			if err != nil {
				return err
			}
			defer store.Close()

			var n int
			if domainName == "" {
				n, err = store.DeleteAll(cmd.Context())
			} else {
				n, err = store.DeleteDomain(cmd.Context(), domainName)
			}
			if err != nil {
				return fmt.Errorf("clear checkpoints: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d checkpoint(s)\n", n)
			return nil
		},
	})

	return cmd
}

func openCheckpoints(root *rootOptions) (*checkpoint.Store, error) {
	a, err := loadApp(root, "checkpoints")
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.Open(a.cfg.Pipeline.CheckpointPath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return store, nil
}

func writeCheckpoints(w io.Writer, entries []checkpoint.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No checkpoints.")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Domain,
			string(e.Stage),
			strconv.Itoa(e.Version),
			strconv.Itoa(e.Size),
			e.CreatedAt.Local().Format(time.DateTime),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Domain", "Stage", "Version", "Bytes", "Saved").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}
