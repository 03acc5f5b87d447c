package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newWarmCmd(opts *rootOptions) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Fill the cache with the first feed pages",
		Example: `  # Cache the first five pages
  catalogctl warm --pages 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.repo.InitializeStats(ctx); err != nil {
				return err
			}

			start := time.Now()
			cached := 0
			for page := range pages {
				res, err := e.repo.FeedPage(ctx, "", page)
				if err != nil {
					return fmt.Errorf("page %d: %w", page, err)
				}
				cached += len(res.Items)
				fmt.Fprintf(cmd.OutOrStdout(), "page %d: %d items\n", page, len(res.Items))
				if !res.HasMore() {
					break
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cached %d items in %s\n", cached, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the aggregate catalog stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.repo.InitializeStats(ctx); err != nil {
				return err
			}
			st, err := e.repo.Stats(ctx)
			if err != nil {
				return err
			}
			cachedCount, err := e.db.CountPokemon(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cached items:  %d\n", cachedCount)
			fmt.Fprintf(out, "seen:          %d\n", st.TotalSeen)
			fmt.Fprintf(out, "favorites:     %d\n", st.TotalFavorites)
			fmt.Fprintf(out, "time spent:    %s\n", (time.Duration(st.TotalTimeSpentMs) * time.Millisecond).Round(time.Second))
			return nil
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached item, keeping favorites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.ClearPokemon(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "catalog cache cleared")
			return nil
		},
	}
}

func newTypesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the known item types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			types, err := e.repo.AllTypes(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}
