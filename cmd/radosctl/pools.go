package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLspoolsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "lspools",
		Short: "List pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pools, err := s.conn.ListPools(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range pools {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newMkpoolCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mkpool <pool>",
		Short: "Create a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.conn.MakePool(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "successfully created pool %s\n", args[0])
			return nil
		},
	}
}

func newRmpoolCmd(s *session) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "rmpool <pool>",
		Short: "Delete a pool with all its objects and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("deleting pool %s destroys its data; pass --yes-i-really-mean-it", args[0])
			}
			if err := s.conn.DeletePool(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "successfully deleted pool %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes-i-really-mean-it", false, "confirm the deletion")
	return cmd
}

func newDfCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Show cluster and per-pool usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pools, err := s.conn.ListPools(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-20s %10s %10s %8s\n", "POOL", "KB", "OBJECTS", "SNAPS")
			for _, name := range pools {
				io, err := s.conn.OpenIOContext(ctx, name)
				if err != nil {
					return err
				}
				st, err := io.GetPoolStats(ctx)
				_ = io.Close()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-20s %10d %10d %8d\n", name, st.NumKb, st.NumObjects, st.NumSnaps)
			}

			cst, err := s.conn.GetClusterStats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\ntotal used %d KB, avail %d KB of %d KB, %d objects\n",
				cst.KbUsed, cst.KbAvail, cst.Kb, cst.NumObjects)
			return nil
		},
	}
}
