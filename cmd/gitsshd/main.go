package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bravo68web/gitsshd/internal/application/commands"
)

func main() {
	cmd := commands.NewCommandRegistry().RegisterCLI()

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
