package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect STATION [FILE]",
	Short: "Parse a datalogger file and summarise it per data array",
	Long: `Parse FILE, or the station's configured source when FILE is omitted,
and print the row count and time range of every data array. Nothing is
written to the database.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInspect,
}

var ddlCmd = &cobra.Command{
	Use:   "ddl STATION",
	Short: "Print the CREATE TABLE statement for a station",
	Args:  cobra.ExactArgs(1),
	RunE:  runDDL,
}

func init() {
	rootCmd.AddCommand(inspectCmd, ddlCmd)
}

func loadRegistry() (*stations.Registry, error) {
	_ = godotenv.Load(".env")
	path := registryPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv("STATION_REGISTRY"))
	}
	if path == "" {
		path = "stations.yaml"
	}
	return stations.LoadRegistry(path)
}

func runInspect(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	st, err := registry.Station(args[0])
	if err != nil {
		return err
	}

	location := st.Source
	if len(args) == 2 {
		location = args[1]
	}
	if location == "" {
		return fmt.Errorf("station %s has no source; pass a file", st.Code)
	}

	body, err := datfile.Fetch(cmd.Context(), &http.Client{Timeout: 30 * time.Second}, location)
	if err != nil {
		return err
	}
	raw, err := datfile.Parse(st, bytes.NewReader(body))
	if err != nil {
		return err
	}
	raw = datfile.AddAlbedo(raw)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s rows, %d columns, %s\n\n", st.Code, humanize.Comma(int64(raw.Len())), len(raw.Columns), humanize.Bytes(uint64(len(body))))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARRAY\tLABEL\tINTERVAL\tROWS\tFIRST\tLAST")
	for _, arr := range st.Arrays() {
		recs, err := datfile.RecordsForInterval(raw, arr.Label)
		if err != nil {
			return err
		}
		first, last := "-", "-"
		if len(recs) > 0 {
			first = recs[0].Key.Time.Format("2006-01-02 15:04")
			last = recs[len(recs)-1].Key.Time.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", arr.ID, arr.Label, arr.Interval(), humanize.Comma(int64(len(recs))), first, last)
	}
	return tw.Flush()
}

func runDDL(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	st, err := registry.Station(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), stations.CreateTableSQL(st))
	return nil
}
