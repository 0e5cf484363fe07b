package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// readInput reads the named file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newLsCmd(s *session) *cobra.Command {
	var chunk int
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the objects of the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			l, err := ioctx.ListObjectsPartial(chunk)
			if err != nil {
				return err
			}
			defer l.Close()

			for {
				n, err := l.Next(ctx)
				if err != nil {
					return err
				}
				if n == 0 {
					return nil
				}
				for _, oid := range l.Objects() {
					fmt.Fprintln(cmd.OutOrStdout(), oid)
				}
			}
		},
	}
	cmd.Flags().IntVar(&chunk, "chunk", 1000, "ids fetched per round trip")
	return cmd
}

func newPutCmd(s *session) *cobra.Command {
	var offset uint64
	cmd := &cobra.Command{
		Use:   "put <object> <file|->",
		Short: "Store a file as an object, replacing its content",
		Long: `Store a file as an object. Without --offset the object is replaced
entirely; with --offset the data is written at that position and the rest of
the object is kept.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("offset") {
				return ioctx.Write(ctx, args[0], data, offset)
			}
			return ioctx.WriteFull(ctx, args[0], data)
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "write at this byte offset instead of replacing")
	return cmd
}

func newAppendCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "append <object> <file|->",
		Short: "Append a file to an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			return ioctx.Append(ctx, args[0], data)
		},
	}
}

func newGetCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <object> [file|-]",
		Short: "Fetch an object into a file or stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			st, err := ioctx.Stat(ctx, args[0])
			if err != nil {
				return err
			}
			buf := make([]byte, st.Size)
			n, err := ioctx.Read(ctx, args[0], buf, 0)
			if err != nil {
				return err
			}
			if len(args) == 1 || args[1] == "-" {
				_, err = cmd.OutOrStdout().Write(buf[:n])
				return err
			}
			return os.WriteFile(args[1], buf[:n], 0o644)
		},
	}
}

func newStatCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <object>",
		Short: "Show the size and modification time of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			st, err := ioctx.Stat(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s mtime %s, size %d\n",
				ioctx.GetPoolName(), args[0], st.ModTime.Format(time.RFC3339), st.Size)
			return nil
		},
	}
}

func newRmCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <object>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			for _, oid := range args {
				if err := ioctx.Delete(ctx, oid); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newTruncateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <object> <size>",
		Short: "Resize an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			size, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[1], err)
			}
			ioctx, err := s.ioctx(ctx)
			if err != nil {
				return err
			}
			return ioctx.Truncate(ctx, args[0], size)
		},
	}
}
