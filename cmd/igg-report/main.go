package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/config"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/igg"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/stakes"
)

var (
	envFile    string
	asOf       string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "igg-report",
	Short: "Print pavement condition reports from the survey database",
	Long: `igg-report reads the same database as api-pavement and prints the Global
Gravity Index (IGG) of roads and segments together with the quantitative and
memoir tables used in condition survey reports.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFormatter(&log.JSONFormatter{})
		log.SetLevel(log.WarnLevel)
	},
}

var roadCmd = &cobra.Command{
	Use:   "road <road-id>",
	Short: "Print the IGG and reporting tables of a road",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoad,
}

var segmentCmd = &cobra.Command{
	Use:   "segment <segment-id>",
	Short: "Print the current IGG, stationing and history of a segment",
	Args:  cobra.ExactArgs(1),
	RunE:  runSegment,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "envfile", ".env", "An optional file with environment variables")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	roadCmd.Flags().StringVar(&asOf, "as-of", "", "Reference date (YYYY-MM-DD), picks the survey closest to it for every segment")

	rootCmd.AddCommand(roadCmd, segmentCmd)
}

var errInMemoryDatabase = errors.New("igg-report needs a persistent database, set PAVEMENT_SQLITE_PATH to a file or PAVEMENT_DB_DRIVER=postgres")

func openCalculator() (*igg.Calculator, database.Datastore, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.InMemory() {
		return nil, nil, errInMemoryDatabase
	}

	db, err := database.NewDatabaseConnection(cfg.Connector(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return igg.NewCalculator(db), db, nil
}

func runRoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	calc, _, err := openCalculator()
	if err != nil {
		return err
	}

	var rollup igg.Rollup

	if asOf != "" {
		reference, perr := time.Parse("2006-01-02", asOf)
		if perr != nil {
			return fmt.Errorf("--as-of must be formatted as YYYY-MM-DD")
		}
		rollup, err = calc.RoadAsOf(ctx, args[0], reference)
	} else {
		rollup, err = calc.RoadSummary(ctx, args[0])
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rollup)
	}

	printRollup(cmd.OutOrStdout(), rollup)
	return nil
}

func printRollup(out io.Writer, rollup igg.Rollup) {
	fmt.Fprintf(out, "Road %s\n", rollup.RoadID)
	fmt.Fprintf(out, "IGG %.2f (%s), %d stakes, %d defects\n\n", rollup.IGG, igg.Classify(rollup.IGG), rollup.TotalStakes, rollup.TotalDefectCount)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "SEGMENT\tSURVEY\tDATE")
	for _, s := range rollup.Surveys {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.SegmentID, s.SurveyID, s.Date.Format("2006-01-02"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DEFECT\tCODE\tFA\tSEGMENTS")
	for _, row := range rollup.Quantitative {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", row.Name, row.Code, row.Fa, row.Segments)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DEFECT\tFA\tFR\tFP\tIGI")
	for _, row := range rollup.Memoir {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\n", row.Name, row.Fa, row.Fr, row.Fp, row.Igi)
	}

	w.Flush()
}

type segmentReport struct {
	SegmentID string        `json:"segmentId"`
	IGG       float64       `json:"igg"`
	Condition igg.Condition `json:"condition"`
	Stations  []string      `json:"stations"`
	History   []igg.Point   `json:"history"`
}

func runSegment(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	calc, db, err := openCalculator()
	if err != nil {
		return err
	}

	segment, err := db.GetSegment(ctx, args[0])
	if err != nil {
		return fmt.Errorf("unable to find segment %s: %w", args[0], err)
	}

	value, err := calc.SegmentIGG(ctx, segment.ID)
	if err != nil {
		return err
	}

	history, err := calc.History(ctx, segment.ID)
	if err != nil {
		return err
	}

	report := segmentReport{
		SegmentID: segment.ID,
		IGG:       igg.Round2(value),
		Condition: igg.Classify(value),
		Stations:  stakes.Stations(segment.KmStart, segment.KmEnd),
		History:   history,
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Segment %s (km %.3f - %.3f, %d stakes)\n", segment.ID, segment.KmStart, segment.KmEnd, stakes.Count(segment.KmStart, segment.KmEnd))
	fmt.Fprintf(out, "IGG %.2f (%s)\n\n", report.IGG, report.Condition)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tIGG")
	for _, p := range history {
		fmt.Fprintf(w, "%s\t%.2f\n", p.Date.Format("2006-01-02"), p.IGG)
	}
	w.Flush()

	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
