// Command transferd moves a user's chat history from one device to another
// on the same network.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/devxfer/devxfer/internal/devicetransfer"
	"github.com/devxfer/devxfer/internal/deviceid"
	"github.com/devxfer/devxfer/internal/log"
	"github.com/devxfer/devxfer/internal/migrations"
	"github.com/devxfer/devxfer/internal/sqlite"
)

const (
	// DefaultDBPath is the default path of the chat database.
	DefaultDBPath = "~/.local/share/devxfer/chat.db"
	// DefaultJournalPath is the default path of the transfer journal.
	DefaultJournalPath = "~/.local/share/devxfer/journal.db"
	// DefaultListenAddr is where a sending device waits for its peer.
	DefaultListenAddr = ":7420"
)

const version = "0.1.0-dev"

// expandPath expands the ~ in a path to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

// openChat opens the chat database at path and brings its schema up to date.
func openChat(path string) (*sql.DB, error) {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database file '%s': %w", path, err)
	}
	if err := migrations.BootstrapChat(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Path to the chat database",
		Value:   DefaultDBPath,
		EnvVars: []string{"DEVXFER_DB"},
	}
}

func journalFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "journal",
		Aliases: []string{"j"},
		Usage:   "Path to the transfer journal",
		Value:   DefaultJournalPath,
		EnvVars: []string{"DEVXFER_JOURNAL"},
	}
}

// sessionFlags are shared by send and receive.
func sessionFlags() []cli.Flag {
	defaults := devicetransfer.DefaultConfig()
	return []cli.Flag{
		dbFlag(),
		journalFlag(),
		&cli.StringFlag{
			Name:    "code",
			Aliases: []string{"c"},
			Usage:   "Pairing code both devices must present",
			EnvVars: []string{"DEVXFER_CODE"},
		},
		&cli.StringFlag{
			Name:    "secret",
			Aliases: []string{"s"},
			Usage:   "Transfer secret sealing every frame",
			EnvVars: []string{"DEVXFER_SECRET"},
		},
		&cli.BoolFlag{
			Name:  "plain",
			Usage: "Do not seal frames",
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "Transport to use (tcp, ws)",
			Value:   "tcp",
			EnvVars: []string{"DEVXFER_TRANSPORT"},
		},
		&cli.DurationFlag{
			Name:    "idle-timeout",
			Usage:   "Fail when the peer stays silent this long",
			Value:   defaults.Transport.IdleTimeout,
			EnvVars: []string{"DEVXFER_IDLE_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent record decoders",
			Value: defaults.DecodeWorkers,
		},
		&cli.IntFlag{
			Name:  "max-malformed",
			Usage: "Malformed records tolerated before the transfer fails",
			Value: defaults.MaxMalformed,
		},
	}
}

// sessionConfig builds the session configuration from the shared flags.
func sessionConfig(c *cli.Context, deviceID string) devicetransfer.Config {
	cfg := devicetransfer.DefaultConfig()
	cfg.Code = c.String("code")
	cfg.DeviceID = deviceID
	cfg.Transport.IdleTimeout = c.Duration("idle-timeout")
	cfg.DecodeWorkers = c.Int("workers")
	cfg.MaxMalformed = c.Int("max-malformed")
	return cfg
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "transferd",
		Usage:   "transfer chat history between devices",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DEVXFER_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			sendCommand(),
			receiveCommand(),
			sessionsCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("transferd failed")
		os.Exit(1)
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create or migrate the chat database and assign a device id",
		Flags: []cli.Flag{dbFlag()},
		Action: func(c *cli.Context) error {
			db, err := openChat(c.String("db"))
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := migrations.NewRunner(db).Version()
			if err != nil {
				return err
			}
			id, err := deviceid.Ensure(db)
			if err != nil {
				return err
			}
			fmt.Printf("Schema version: %d\nDevice ID: %s\n", version, id)
			return nil
		},
	}
}
