package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/gitsshd/internal/server"
)

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the users, ssh_keys and repositories tables",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := server.New(ctx, cmd.String(configFlag))
			if err != nil {
				return err
			}
			defer app.Close()

			db, err := app.OpenDatabase()
			if err != nil {
				return err
			}
			return db.RunMigrations()
		},
	}
}
