package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	gossh "golang.org/x/crypto/ssh"

	"github.com/bravo68web/gitsshd/internal/server"
	"github.com/bravo68web/gitsshd/internal/transport/ssh"
)

// HostKeyCommand loads (or creates) the host key and prints its public half
func HostKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "hostkey",
		Usage: "Show the server host key fingerprint, generating the key if needed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "host key file (defaults to ssh.host_key_path)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := server.New(ctx, cmd.String(configFlag))
			if err != nil {
				return err
			}
			defer app.Close()

			path := cmd.String("path")
			if path == "" {
				path = app.Config.SSH.HostKeyPath
			}

			signer, err := ssh.LoadOrGenerateHostKey(path, app.Log)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "%s\n", gossh.FingerprintSHA256(signer.PublicKey()))
			fmt.Fprintf(cmd.Root().Writer, "%s", gossh.MarshalAuthorizedKey(signer.PublicKey()))
			return nil
		},
	}
}
