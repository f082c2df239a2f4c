// Package cli describes the docchatd command tree as JSON so scripts can
// discover its commands, flags and the environment it reads.
package cli

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	helpJSONFlag = "help-json"

	// jsonOutputAnnotation marks commands that honour the --output flag
	jsonOutputAnnotation = "docchat.json-output"
)

// FlagSchema describes one flag of a command.
type FlagSchema struct {
	Name       string `json:"name"`
	Shorthand  string `json:"shorthand,omitempty"`
	Type       string `json:"type"`
	Default    string `json:"default,omitempty"`
	Usage      string `json:"usage,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

// CommandSchema describes a command and its visible subcommands. The root
// command also lists the environment variables the configuration reads.
type CommandSchema struct {
	Name        string            `json:"name"`
	Args        string            `json:"args,omitempty"`
	Short       string            `json:"short,omitempty"`
	Long        string            `json:"long,omitempty"`
	JSONOutput  bool              `json:"json_output"`
	Flags       []FlagSchema      `json:"flags,omitempty"`
	Environment []config.Variable `json:"environment,omitempty"`
	Subcommands []CommandSchema   `json:"subcommands,omitempty"`
}

// WithJSONOutput marks cmd as printing JSON when --output is set.
func WithJSONOutput(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[jsonOutputAnnotation] = "true"
	return cmd
}

// Describe builds the schema of cmd.
func Describe(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:       cmd.Name(),
		Args:       strings.TrimSpace(strings.TrimPrefix(cmd.Use, cmd.Name())),
		Short:      cmd.Short,
		Long:       cmd.Long,
		JSONOutput: cmd.Annotations[jsonOutputAnnotation] == "true",
	}

	persistent := cmd.PersistentFlags()
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" || f.Name == "version" {
			return
		}
		schema.Flags = append(schema.Flags, FlagSchema{
			Name:       f.Name,
			Shorthand:  f.Shorthand,
			Type:       f.Value.Type(),
			Default:    f.DefValue,
			Usage:      f.Usage,
			Required:   len(f.Annotations[cobra.BashCompOneRequiredFlag]) > 0,
			Persistent: persistent.Lookup(f.Name) != nil,
		})
	})

	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, Describe(sub))
	}

	return schema
}

// AddHelpJSONFlag registers --help-json on root and its subcommands.
func AddHelpJSONFlag(root *cobra.Command) {
	root.PersistentFlags().Bool(helpJSONFlag, false, "Print the command schema as JSON")
}

// HandleHelpJSON prints the schema of the command args select when they
// contain --help-json, and reports whether it did. It runs before Execute so
// the target command's argument validation does not reject the call.
func HandleHelpJSON(root *cobra.Command, args []string) (bool, error) {
	flag := "--" + helpJSONFlag
	if !slices.Contains(args, flag) {
		return false, nil
	}

	rest := slices.DeleteFunc(slices.Clone(args), func(a string) bool { return a == flag })
	target, _, err := root.Find(rest)
	if err != nil || target == nil {
		target = root
	}

	schema := Describe(target)
	if target == root {
		vars, err := config.Variables()
		if err != nil {
			return true, err
		}
		schema.Environment = vars
	}

	enc := json.NewEncoder(root.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(schema)
}
