package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devxfer/devxfer/internal/devicetransfer"
)

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "list journaled transfer sessions",
		Flags: []cli.Flag{
			journalFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "Show record outcomes and unknown records of one session",
			},
			&cli.StringSliceFlag{
				Name:  "rm",
				Usage: "Remove a session and its record log",
			},
			&cli.DurationFlag{
				Name:  "prune",
				Usage: "First remove sessions idle for longer than this",
			},
		},
		Action: func(c *cli.Context) error {
			journal, err := devicetransfer.OpenJournal(expandPath(c.String("journal")))
			if err != nil {
				return err
			}
			defer journal.Close()

			for _, id := range c.StringSlice("rm") {
				if err := journal.CleanupSession(id); err != nil {
					return fmt.Errorf("failed to remove session %s: %w", id, err)
				}
				fmt.Printf("Removed session %s\n", id)
			}

			if maxAge := c.Duration("prune"); maxAge > 0 {
				n, err := journal.CleanupExpired(maxAge)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d sessions\n", n)
			}

			if id := c.String("id"); id != "" {
				return showSession(journal, id)
			}

			sessions, err := journal.ListSessions()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIRECTION\tPEER\tSTATE\tPROGRESS\tLAST ACTIVE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Direction, s.Peer, s.State, progress(s), s.LastActive.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func progress(s devicetransfer.SessionInfo) string {
	if s.Total == devicetransfer.UnknownTotal {
		return fmt.Sprintf("%d/?", s.Processed)
	}
	return fmt.Sprintf("%d/%d", s.Processed, s.Total)
}

func showSession(journal *devicetransfer.Journal, id string) error {
	s, err := journal.GetSession(id)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s (%s) with %s: %s, %s\n", s.ID, s.Direction, s.Peer, s.State, progress(s))

	counts, err := journal.OutcomeCounts(id)
	if err != nil {
		return err
	}
	for _, o := range []devicetransfer.Outcome{
		devicetransfer.OutcomeApplied,
		devicetransfer.OutcomeSkipped,
		devicetransfer.OutcomeDuplicate,
		devicetransfer.OutcomeMalformed,
	} {
		fmt.Printf("  %-10s %d\n", o, counts[o])
	}

	letters, err := journal.DeadLetters(id)
	if err != nil {
		return err
	}
	for _, d := range letters {
		fmt.Printf("  unknown %s (%d bytes) at %s\n", d.Tag, len(d.Body), d.CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}
