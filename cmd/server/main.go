// The server command is the main entrypoint for sternd, the two-player
// Sternhalma game server. It parses flags, loads the configuration, and
// runs the controller until the game concludes or the process is signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/halma/sternd/internal"
	"github.com/halma/sternd/internal/core"
)

var configPath = pflag.String("config", "./", "Path to the directory containing the server config file")

// The remaining flags reach the rest of the server through viper; see
// core.LoadConfig for the bindings.
func init() {
	pflag.String("tcp", "", "Host address for the length-prefixed TCP listener")
	pflag.String("ws", "", "Host address for the WebSocket listener")
	pflag.IntP("max-turns", "n", -1, "Maximum number of turns before the game is called")
	pflag.IntP("timeout", "t", 300, "Per-connection idle timeout in seconds")
}

func main() {
	// A .env file is a development convenience; silence is fine otherwise.
	_ = godotenv.Load()

	pflag.Parse()

	config, err := core.LoadConfig(*configPath, pflag.CommandLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error loading configuration:", err)
		os.Exit(1)
	}
	if config.TCPAddr == "" && config.WSAddr == "" {
		fmt.Fprintln(os.Stderr, "at least one of --tcp or --ws is required")
		pflag.Usage()
		os.Exit(2)
	}

	// Bind the Controller to one top-level context so that we can shut
	// down cleanly on Ctrl-C or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("waiting to shut down gracefully...")
		cancel()
		<-c
		fmt.Println("hard exiting (killed)")
		os.Exit(1)
	}()

	controller := &internal.Controller{Config: config}
	if err := controller.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	fmt.Println("shut down")
}
