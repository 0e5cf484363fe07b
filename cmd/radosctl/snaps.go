package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newMksnapCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mksnap <snap>",
		Short: "Snapshot the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			if err := ioctx.CreateSnap(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created pool %s snap %s\n", ioctx.GetPoolName(), args[0])
			return nil
		},
	}
}

func newRmsnapCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rmsnap <snap>",
		Short: "Remove a pool snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			if err := ioctx.RemoveSnap(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed pool %s snap %s\n", ioctx.GetPoolName(), args[0])
			return nil
		},
	}
}

func newLssnapCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "lssnap",
		Short: "List pool snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			ids, err := ioctx.ListSnaps(ctx)
			if err != nil {
				return err
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			out := cmd.OutOrStdout()
			for _, id := range ids {
				name, err := ioctx.GetSnapName(ctx, id)
				if err != nil {
					return err
				}
				stamp, err := ioctx.GetSnapStamp(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d\t%s\t%s\n", uint64(id), name, stamp.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "%d snaps\n", len(ids))
			return nil
		},
	}
}

func newRollbackCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <object> <snap>",
		Short: "Restore an object to its content at a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			if err := ioctx.Rollback(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back pool %s object %s to snap %s\n",
				ioctx.GetPoolName(), args[0], args[1])
			return nil
		},
	}
}
