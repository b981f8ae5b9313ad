// Package cli implements the packdb command line over schema-less documents.
package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/packdb/packdb"
	"github.com/packdb/packdb/common"
	"github.com/packdb/packdb/infs"
)

// RootOptions holds global flags for all commands and the state they share.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	LogLevel   string

	config   *FileConfig
	db       *infs.Database
	managers map[string]*common.DataManager[Document]
}

// NewRootCommand creates the root command of the packdb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "packdb",
		Short: "PackDB - file per record object store",
		Long:  "Read and write typed documents kept one file per record, with secondary indexes and audit logs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := &slog.LevelVar{}
			level.Set(packdb.ParseLogLevel(opts.LogLevel))
			slog.SetDefault(NewLogger(cmd.ErrOrStderr(), level))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML file declaring the data folder and record types")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data folder, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewNextIDCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewPoisonedCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// open loads the configuration and opens the data root once per process.
func (o *RootOptions) open() error {
	if o.db != nil {
		return nil
	}
	cfg, err := LoadConfig(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	db, err := infs.Open(infs.Config{Options: cfg.Options})
	if err != nil {
		return WrapExitError(exitCodeOf(err, ExitCommandError), "can't open data folder", err)
	}
	o.config = cfg
	o.db = db
	o.managers = make(map[string]*common.DataManager[Document])
	return nil
}

// manager returns the data manager of a configured type.
func (o *RootOptions) manager(typeName string) (*common.DataManager[Document], error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	if dm, ok := o.managers[typeName]; ok {
		return dm, nil
	}
	tc, ok := o.config.Type(typeName)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("type %q is not declared in the configuration", typeName))
	}
	dm, err := infs.NewDataManager(o.db, tc.Schema())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid type "+typeName, err)
	}
	o.managers[typeName] = dm
	return dm, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid id %q", s), err)
	}
	return id, nil
}

// result prints the outcome and turns a failed operation into exit code 1.
func result(cmd *cobra.Command, ok bool, data any, failure string) error {
	if err := writeJSON(cmd.OutOrStdout(), ok, data); err != nil {
		return err
	}
	if !ok {
		return NewExitError(ExitFailure, failure)
	}
	return nil
}
