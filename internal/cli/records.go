package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// getResult is one entry of the get output.
type getResult struct {
	ID     int            `json:"id"`
	Found  bool           `json:"found"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewPutCommand creates the put command.
func NewPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <type> <id> <fields-json>",
		Short: "Create or replace a document",
		Long: `Create or replace a document. Fields not declared for the type are kept
but neither indexed nor audited.

Example:
  packdb put customer 1 '{"name":"ann","email":"ann@example.com"}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			var fields map[string]any
			if err := json.Unmarshal([]byte(args[2]), &fields); err != nil {
				return WrapExitError(ExitCommandError, "invalid fields JSON", err)
			}
			doc := Document{ID: id, Fields: fields}
			return result(cmd, dm.Write(cmd.Context(), doc), doc, fmt.Sprintf("write of %s %d failed", args[0], id))
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>...",
		Short: "Read documents by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			ids := make([]int, 0, len(args)-1)
			for _, a := range args[1:] {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			results := make([]getResult, 0, len(ids))
			i := 0
			for doc, found := range dm.ReadMany(cmd.Context(), ids) {
				results = append(results, getResult{ID: ids[i], Found: found, Fields: doc.Fields})
				i++
			}
			return writeJSON(cmd.OutOrStdout(), true, results)
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a document",
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
			return result(cmd, dm.Delete(cmd.Context(), id), map[string]int{"id": id},
				fmt.Sprintf("delete of %s %d failed", args[0], id))
		},
	}
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <type> <id>",
		Short: "Restore a soft deleted document",
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
			return result(cmd, dm.Restore(cmd.Context(), id), map[string]int{"id": id},
				fmt.Sprintf("restore of %s %d failed", args[0], id))
		},
	}
}

// NewNextIDCommand creates the next-id command.
func NewNextIDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next-id <type>",
		Short: "Print the next free id of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := opts.manager(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), true, map[string]int{"next_id": dm.NextID(cmd.Context())})
		},
	}
}
