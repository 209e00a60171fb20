package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/recera/reflow/cmd/reflow/internal/ui"
	"github.com/recera/reflow/internal/cache"
	"github.com/spf13/cobra"
)

func newCacheCommand(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the compiled expression cache",
	}

	openCache := func() (*cache.Cache, error) {
		if env.cache == nil {
			return nil, errors.New("the cache is disabled; pass --cache-dir or set cache.enabled")
		}
		return env.cache, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics and entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			st := c.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, ui.Title("cache "+c.Dir()))
			fmt.Fprintf(w, "entries %d, %d bytes\n", st.EntryCount, st.TotalSize)

			entries := c.Entries()
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].LastAccess.After(entries[j].LastAccess)
			})
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", e.Key[:12], e.Size, e.AccessCount, e.Label)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached program",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})

	return cmd
}
