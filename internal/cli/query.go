package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packdb/packdb"
)

// NewFindCommand creates the find command.
func NewFindCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <type> <field> <value>",
		Short: "Read the documents an index files under a value",
		Long: `Read the documents an index files under a value. The value is parsed as
JSON when it is valid JSON and taken as a plain string otherwise.

Example:
  packdb find customer email ann@example.com
  packdb find customer tier 2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			if _, ok := dm.Schema().Index(args[1]); !ok {
				return NewExitError(ExitCommandError, "field "+args[1]+" is not indexed")
			}
			docs := []Document{}
			for doc, found := range dm.ReadIndex(cmd.Context(), args[1], parseValue(args[2])) {
				if found {
					docs = append(docs, doc)
				}
			}
			return writeJSON(cmd.OutOrStdout(), true, docs)
		},
	}
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <type> <id>",
		Short: "Print the audit log of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			l, ok := dm.History(cmd.Context(), id)
			if l.Entries == nil {
				l.Entries = []packdb.AuditEntry{}
			}
			return result(cmd, ok, l, "no audit log for "+args[0]+" "+args[1])
		},
	}
}

// NewPoisonedCommand creates the poisoned command.
func NewPoisonedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poisoned <type>",
		Short: "List documents whose rollback gave up and need repair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			reports := dm.Poisoned(cmd.Context())
			if reports == nil {
				reports = []packdb.PoisonReport{}
			}
			if err := writeJSON(cmd.OutOrStdout(), true, reports); err != nil {
				return err
			}
			if len(reports) > 0 {
				return NewExitError(ExitPoisoned, fmt.Sprintf("%d %s documents need repair", len(reports), args[0]))
			}
			return nil
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), true, map[string]string{"version": packdb.Version})
		},
	}
}
