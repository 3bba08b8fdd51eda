// Package main runs the card editor: a system tray host for creating cards
// from scanned or generated identifiers, and a WebSocket server that hosts
// card edit screens for remote clients.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nedpals/davi-nfc-cards/buildinfo"
	"github.com/nedpals/davi-nfc-cards/config"
	"github.com/nedpals/davi-nfc-cards/nfc"
)

func newRootCmd() *cobra.Command {
	var configFile string
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:          buildinfo.Name,
		Short:        buildinfo.Description,
		Long:         `Create and edit NFC cards from the system tray. Identifiers are generated or read from a tag; the derived UID is shown as it is computed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			runTray(NewAgent(cfg, nil))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a config file (default: config.yaml if present)")
	flags.String("device", defaults.NFC.Device, "NFC device connection string (default: first device)")
	flags.Int("port", defaults.Server.Port, "Port to listen on for WebSocket clients")
	flags.String("api-secret", defaults.Server.APISecret, "API secret required from WebSocket clients (optional)")
	flags.Bool("mdns", defaults.Server.MDNS, "Advertise the server on the local network")
	flags.String("store", defaults.Store.Path, "Path of the card store document")
	flags.String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(&configFile), newVersionCmd())
	return rootCmd
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server without the system tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			return runServer(NewAgent(cfg, nil))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
			fmt.Fprintf(cmd.OutOrStdout(), "  libnfc: %s\n", nfc.Version())
		},
	}
}

func loadConfig(cmd *cobra.Command, file string) (*config.Config, error) {
	cfg, err := config.Load(file, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := config.SetupLogging(cfg.Log, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(agent *Agent) error {
	errCh, err := agent.StartServer()
	if err != nil {
		return err
	}
	defer agent.Stop()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutdown signal received, stopping server...")
		return nil
	case err := <-errCh:
		return err
	}
}

func runTray(agent *Agent) {
	app := NewSystrayApp(agent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		app.Quit()
	}()

	app.Run()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
