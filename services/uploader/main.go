package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "csas-uploader",
	Short: "Upload datalogger files from the CSAS weather and snow stations",
	Long: `csas-uploader parses datalogger files for each registered station,
drops rows already in the database, checks that the new rows continue the
sampling interval of each data array and appends the rest.`,
	SilenceUsage: true,
}

var registryPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "station registry YAML (defaults to STATION_REGISTRY)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
