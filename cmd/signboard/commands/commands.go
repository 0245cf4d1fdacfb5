package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/signboard/pkg/signboard"
)

func newCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [-i id] <text>",
		Short: "Create a signboard, or replace the text of an existing id",
		Example: `  signboard create Room 4
  signboard create -i lobby "Welcome"
  signboard create -5 degrees`,
		// Text words may start with '-', so only -i is parsed
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, text, help, err := a.parseTextArgs(args)
			if err != nil {
				return a.usageError(cmd, err.Error())
			}
			if help {
				return cmd.Help()
			}
			if len(text) == 0 {
				return a.usageError(cmd, "text is required")
			}
			return a.send(cmd.Context(), signboard.Command{
				Action: signboard.ActionCreate,
				ID:     id,
				Text:   joinText(text),
			})
		},
	}
	cmd.Flags().StringP("id", "i", "", "Signboard id (generated when omitted)")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "update -i <id> <text>",
		Short:              "Replace the text of a signboard",
		Example:            `  signboard update -i ab12cd34 Back in 5 minutes`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, text, help, err := a.parseTextArgs(args)
			if err != nil {
				return a.usageError(cmd, err.Error())
			}
			if help {
				return cmd.Help()
			}
			if id == "" {
				return a.usageError(cmd, "-i <id> is required")
			}
			if len(text) == 0 {
				return a.usageError(cmd, "text is required")
			}
			return a.send(cmd.Context(), signboard.Command{
				Action: signboard.ActionUpdate,
				ID:     id,
				Text:   joinText(text),
			})
		},
	}
	cmd.Flags().StringP("id", "i", "", "Signboard id")
	return cmd
}

// parseTextArgs splits the raw arguments of a text command. -i/--id takes
// the next word, --config and --session set the global options and "--" ends
// option scanning. Every other word is text, even when it starts with '-'.
// A lone -h or --help asks for help.
func (a *app) parseTextArgs(args []string) (id string, text []string, help bool, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			text = append(text, args[i+1:]...)
			break
		}

		name, value, hasValue := strings.Cut(arg, "=")
		var target *string
		switch name {
		case "-i", "--id":
			target = &id
		case "--config":
			target = &a.configPath
			a.configExplicit = true
		case "--session":
			target = &a.session
		default:
			text = append(text, arg)
			continue
		}

		if !hasValue {
			if i+1 >= len(args) {
				return "", nil, false, fmt.Errorf("flag needs an argument: %s", name)
			}
			i++
			value = args[i]
		}
		*target = value
	}

	if id == "" && len(text) == 1 && (text[0] == "-h" || text[0] == "--help") {
		return "", nil, true, nil
	}
	return id, text, false, nil
}

func newDeleteCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete -i <id>",
		Short: "Delete a signboard",
		Args:  noArgs(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			id = strings.TrimSpace(id)
			if id == "" {
				return a.usageError(cmd, "-i <id> is required")
			}
			return a.send(cmd.Context(), signboard.Command{Action: signboard.ActionDelete, ID: id})
		},
	}
	cmd.Flags().StringVarP(&id, "id", "i", "", "Signboard id")
	return cmd
}

func noArgs(a *app) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return a.usageError(cmd, "unexpected arguments: "+strings.Join(args, " "))
		}
		return nil
	}
}

// newNoArgCmd builds the commands that take no arguments and send a fixed command.
func newNoArgCmd(a *app, use, short string, command signboard.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs(a),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.send(cmd.Context(), command)
		},
	}
}

func newDeleteAllCmd(a *app) *cobra.Command {
	return newNoArgCmd(a, "delete-all", "Delete every signboard", signboard.Command{Action: signboard.ActionDelete, All: true})
}

func newHideAllCmd(a *app) *cobra.Command {
	return newNoArgCmd(a, "hide-all", "Hide every signboard", signboard.Command{Action: signboard.ActionHide})
}

func newShowAllCmd(a *app) *cobra.Command {
	return newNoArgCmd(a, "show-all", "Show every signboard", signboard.Command{Action: signboard.ActionShow})
}

func newListCmd(a *app) *cobra.Command {
	return newNoArgCmd(a, "list", "List signboards as \"<id> <text>\" lines", signboard.Command{Action: signboard.ActionList})
}
