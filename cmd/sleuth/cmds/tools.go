package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/go-go-golems/sleuth/pkg/tools/builtin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func toolLoader() *tools.Loader {
	if dir := viper.GetString("tools-dir"); dir != "" {
		return tools.NewDirLoader(dir)
	}
	return tools.NewDefaultLoader()
}

func NewToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect tool schemas and tool sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the available tools and tool sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := toolLoader()
			names, err := l.AvailableTools()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "tools: %s\n", strings.Join(names, ", "))
			for _, set := range l.AvailableToolSets() {
				members, err := l.LoadToolSet(set)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s: %s\n", set, strings.Join(members, ", "))
			}
			return nil
		},
	})

	var out string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the schemas reflected from the builtin tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return WriteSchemas(cmd, out)
		},
	}
	schemaCmd.Flags().StringVar(&out, "out", "", "Directory to write <tool>_tool_schema.json files to (default stdout)")
	cmd.AddCommand(schemaCmd)

	return cmd
}

func WriteSchemas(cmd *cobra.Command, dir string) error {
	schemas, err := builtin.Schemas()
	if err != nil {
		return err
	}

	if dir == "" {
		b, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "could not create %s", dir)
	}
	for _, s := range schemas {
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, s.Name()+"_tool_schema.json")
		if err := os.WriteFile(path, append(b, '\n'), 0644); err != nil {
			return errors.Wrapf(err, "could not write %s", path)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}
	return nil
}
