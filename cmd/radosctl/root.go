// Root of command-line argument parsing for radosctl.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/radosgo/rados"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// session is the state shared by every subcommand of one invocation.
type session struct {
	cfg  *viper.Viper
	conn *rados.Conn
	io   *rados.IOContext
}

// newRootCmd builds the command tree. Flags fall back to RADOS_* environment
// variables through a private viper instance. The returned function releases
// the session and must be called after Execute, which skips
// PersistentPostRunE when a command fails.
func newRootCmd() (*cobra.Command, func() error) {
	s := &session{cfg: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "radosctl",
		Short: "Inspect and modify pools, objects and snapshots",
		Long: `radosctl talks to a cluster through the rados client library.
The transport, client id and configuration file come from flags or the
RADOS_TRANSPORT, RADOS_ID and RADOS_CONF environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.connect(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("conf", "c", "", "configuration file (default: search $CEPH_CONF, /etc/ceph/ceph.conf, ...)")
	flags.StringP("id", "i", "admin", "client id")
	flags.StringP("pool", "p", "", "pool for object and snapshot commands")
	flags.String("transport", "", "cluster transport: memory, badger, minio, postgres or mysql")
	flags.StringArray("option", nil, "extra configuration option key=value (repeatable)")

	for _, name := range []string{"conf", "id", "pool", "transport"} {
		_ = s.cfg.BindPFlag(name, flags.Lookup(name))
	}
	s.cfg.SetEnvPrefix("RADOS")
	s.cfg.AutomaticEnv()

	rootCmd.AddCommand(
		newLspoolsCmd(s), newMkpoolCmd(s), newRmpoolCmd(s), newDfCmd(s),
		newLsCmd(s), newPutCmd(s), newAppendCmd(s), newGetCmd(s),
		newStatCmd(s), newRmCmd(s), newTruncateCmd(s),
		newMksnapCmd(s), newRmsnapCmd(s), newLssnapCmd(s), newRollbackCmd(s),
	)
	return rootCmd, s.close
}

func (s *session) connect(cmd *cobra.Command) error {
	conn, err := rados.NewConn(s.cfg.GetString("id"))
	if err != nil {
		return err
	}

	if path := s.cfg.GetString("conf"); path != "" {
		if err := conn.ReadConfigFile(path); err != nil {
			return err
		}
	} else if err := conn.ReadDefaultConfigFile(); err != nil && !rados.IsNotFound(err) {
		return err
	}

	if t := s.cfg.GetString("transport"); t != "" {
		if err := conn.SetConfigOption(rados.OptTransport, t); err != nil {
			return err
		}
	}
	pairs, err := cmd.Flags().GetStringArray("option")
	if err != nil {
		return err
	}
	for key, value := range parseOptions(pairs) {
		if err := conn.SetConfigOption(key, value); err != nil {
			return err
		}
	}
	if err := conn.Connect(cmd.Context()); err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// ioctx opens the IOContext of the --pool flag on first use.
func (s *session) ioctx(ctx context.Context) (*rados.IOContext, error) {
	if s.io != nil {
		return s.io, nil
	}
	pool := s.cfg.GetString("pool")
	if pool == "" {
		return nil, fmt.Errorf("no pool given: use --pool or RADOS_POOL")
	}
	io, err := s.conn.OpenIOContext(ctx, pool)
	if err != nil {
		return nil, err
	}
	s.io = io
	return io, nil
}

// close releases the IOContext and the Conn in that order.
func (s *session) close() error {
	var firstErr error
	if s.io != nil {
		firstErr = s.io.Close()
		s.io = nil
	}
	if s.conn != nil {
		if err := s.conn.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.conn = nil
	}
	return firstErr
}

// parseOptions splits key=value pairs. Entries without '=' are ignored.
func parseOptions(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(key) != "" {
			result[strings.TrimSpace(key)] = value
		}
	}
	return result
}
