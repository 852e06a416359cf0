// Command igo is the Go execution kernel for DataLab notebooks. It is
// launched by the notebook server with a connection file and speaks the
// Jupyter wire-protocol subset over the sockets named there.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/googledatalab/igo/internal/config"
	"github.com/googledatalab/igo/internal/kernel"
)

var (
	connectionFile string
	settingsFile   string
	verbose        bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "igo",
	Short: "igo - Go kernel for DataLab notebooks",
	Long: `igo executes Go code cells with cumulative REPL state.

The notebook server starts it with a Jupyter connection file; the kernel
binds the shell, iopub and heartbeat sockets named there and serves
kernel_info, connect, execute and shutdown requests until told to stop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The logger binds the startup stderr handle so later stream
		// capture never swallows kernel logs.
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build(zap.ErrorOutput(zapcore.Lock(os.Stderr)))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if connectionFile == "" {
			return fmt.Errorf("--connection-file is required")
		}
		conn, err := config.LoadConnection(connectionFile)
		if err != nil {
			return err
		}
		tuning, err := config.LoadTuning(settingsFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return kernel.Serve(ctx, conn, tuning, logger)
	},
}

var installDest string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Write a kernelspec directory so notebook servers can find igo",
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate kernel binary: %w", err)
		}
		spec := map[string]any{
			"argv":         []string{exe, "--connection-file", "{connection_file}"},
			"display_name": "Go (igo)",
			"language":     "go",
		}
		data, err := json.MarshalIndent(spec, "", "  ")
		if err != nil {
			return err
		}
		dir := filepath.Join(installDest, "igo")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create kernelspec dir: %w", err)
		}
		path := filepath.Join(dir, "kernel.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write kernelspec: %w", err)
		}
		fmt.Printf("kernelspec written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&connectionFile, "connection-file", "", "path to the Jupyter connection file")
	rootCmd.Flags().StringVar(&settingsFile, "config", "", "optional YAML settings file for kernel tuning")
	installCmd.Flags().StringVar(&installDest, "dest", defaultKernelspecDir(), "kernelspec parent directory")
	rootCmd.AddCommand(installCmd)
}

func defaultKernelspecDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "jupyter", "kernels")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
