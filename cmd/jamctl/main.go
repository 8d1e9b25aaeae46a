// Command jamctl joins a shared listening session from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orchestra-mcp/jam/config"
	"github.com/orchestra-mcp/jam/src/app"
	"github.com/orchestra-mcp/jam/src/collab"
	"github.com/rs/zerolog"
)

const usage = `usage: jamctl <command>

commands:
  login <name> <email>   join as a listener and store the session
  logout                 forget the stored identity
  whoami                 print the stored identity
  run                    connect and read commands from stdin`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	level := zerolog.InfoLevel
	if os.Getenv("JAM_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if len(args) == 0 {
		fmt.Println(usage)
		return nil
	}

	cfg := config.FromEnv()
	ids, closer, err := app.OpenIdentity(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "login":
		if len(args) != 3 {
			return errors.New("usage: jamctl login <name> <email>")
		}
		c := collab.New(cfg.APIOrigin, cfg.HTTPTimeout, logger)
		id, err := app.Login(ctx, c, ids, args[1], args[2])
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Printf("logged in as %s (%s)\n", id.DisplayName, id.SessionID)
		return nil
	case "logout":
		return ids.Clear(ctx)
	case "whoami":
		id, err := ids.Load(ctx)
		if err != nil {
			return err
		}
		if !id.HasSession() && !id.HasListener() {
			fmt.Println("not logged in")
			return nil
		}
		fmt.Printf("session: %s\nrole:    %s\nname:    %s\nemail:   %s\n", id.SessionID, id.Role, id.DisplayName, id.Email)
		return nil
	case "run":
		return runSession(ctx, cfg, ids, logger)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

