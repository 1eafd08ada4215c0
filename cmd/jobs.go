package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yanbot/internal/database"
	"github.com/yanbot/internal/ledger"
	"github.com/yanbot/internal/store"
)

// JobsCommand returns the operator commands for the job ledger
func JobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect the job ledger",
		Subcommands: []*cli.Command{
			{
				Name:  "stale",
				Usage: "List jobs still pending after a given age",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Minimum age of a pending job",
						Value: 15 * time.Minute,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print JSON instead of a table",
					},
				},
				Action: runJobsStale,
			},
		},
	}
}

func runJobsStale(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("jobs stale needs database.url; the in-memory ledger is not shared")
	}

	db, err := database.Open(c.Context, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := ledger.New(store.NewPostgresStore(db)).Stale(c.Context, c.Duration("older-than"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	return printJobs(os.Stdout, jobs, time.Now())
}

func printJobs(w io.Writer, jobs []store.Job, now time.Time) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No stale jobs")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tUSER\tKIND\tAGE")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", j.ID, j.UserID, j.Kind, now.Sub(j.CreatedAt).Truncate(time.Second))
	}
	return tw.Flush()
}
