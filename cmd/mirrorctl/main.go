package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/screenbridge/hostcore/internal/config"
	"github.com/screenbridge/hostcore/internal/logging"
	"github.com/screenbridge/hostcore/pkg/mirror"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "mirrorctl",
	Short: "Host-side client for the device mirroring service",
	Long:  `mirrorctl drives device discovery, mirroring sessions, and pairing for the screen mirroring host core.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run device tracking and the inspector server until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Print the state snapshot of an unstarted client (persisted allow/block lists and UI preferences)",
	Run: func(cmd *cobra.Command, args []string) {
		printDevices()
	},
}

var adbDevicesCmd = &cobra.Command{
	Use:   "adb-devices",
	Short: "Run a one-shot debug-tool device listing, without the continuous tracker",
	Run: func(cmd *cobra.Command, args []string) {
		printAdbDevices()
	},
}

var pairCmd = &cobra.Command{
	Use:   "pair <host:port> <code>",
	Short: "Pair with a device advertising wireless debugging",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runPair(args[0], args[1])
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Connect to a device over wireless debugging",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runConnect(args[0])
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <host:port>",
	Short: "Disconnect a wireless-debugging device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDisconnect(args[0])
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <serial>",
	Short: "Add a serial to the block-list and stop mirroring it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBlock(args[0])
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <serial>",
	Short: "Remove a serial from the block-list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUnblock(args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mirrorctl v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(adbDevicesCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// serve starts device tracking and the inspector server and blocks
// until SIGINT/SIGTERM, tearing every open session down on exit.
func serve() {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}

	log.Info("mirrorctl is running", "inspector", cfg.InspectorAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	client.Stop()
	log.Info("stopped")
}

func printDevices() {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	snap := client.Snapshot()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode snapshot: %v\n", err)
		os.Exit(1)
	}
}

func printAdbDevices() {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := client.DevicesSnapshot(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devices listing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}

func runPair(addr, code string) {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Pair(ctx, addr, code); err != nil {
		fmt.Fprintf(os.Stderr, "Pairing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Paired.")
}

func runConnect(addr string) {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected.")
}

func runDisconnect(addr string) {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Disconnect(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Disconnect failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Disconnected.")
}

func runBlock(serial string) {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	client.Block(serial)
	fmt.Printf("Blocked %s.\n", serial)
}

func runUnblock(serial string) {
	cfg := loadConfig()
	initLogging(cfg)

	client := mirror.New(cfg)
	client.Unblock(serial)
	fmt.Printf("Unblocked %s.\n", serial)
}
