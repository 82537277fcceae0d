// boxcat is a terminal IRC client.
//
// It connects to one server, sends PASS (and NICK/USER if configured), then
// sends what you type and prints what the server says.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/horgh/boxcat/internal/logging"
)

func main() {
	log := logging.Runtime()

	args, err := getArgs(os.Args[1:])
	if err == errHelp {
		fmt.Print(usage)
		return
	}
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		log.Fatal().Err(err).Msg("")
	}

	config, err := loadConfig(args)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration problem")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	conn, err := dial(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Str("host", config.Host).Str("port", config.Port).
			Msg("")
	}

	out, color := terminalOutput(config)
	client := NewClient(config, out, color, log)

	if err := client.run(ctx, conn, os.Stdin); err != nil {
		log.Error().Err(err).Msg("connection lost")
		stop()
		os.Exit(1)
	}
}
