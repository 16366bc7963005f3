// Package main is the entry point for the casecount service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/backyonatan-alt/casecount/cmd/casecount/commands"
	"github.com/backyonatan-alt/casecount/internal/model"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(os.Stdout)
	cli.SetArgs(args)
	if err := cli.Execute(ctx); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 2
		}
		slog.Error("casecount failed", "error", err)
		return 1
	}
	return 0
}
