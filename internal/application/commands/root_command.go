package commands

import (
	"github.com/urfave/cli/v3"
)

const configFlag = "config"

type CommandRegistry struct {
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{}
}

// RegisterCLI builds the gitsshd command tree. Running without a subcommand serves.
func (*CommandRegistry) RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:                  "gitsshd",
		Usage:                 "Git over SSH daemon",
		Suggest:               true,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
				Sources: cli.EnvVars("GITSSHD_CONFIG"),
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			ServeCommand(),
			MigrateCommand(),
			HostKeyCommand(),
		},
	}
}
