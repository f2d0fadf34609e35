package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devxfer/devxfer/internal/crypto"
	"github.com/devxfer/devxfer/internal/dao"
	"github.com/devxfer/devxfer/internal/deviceid"
	"github.com/devxfer/devxfer/internal/devicetransfer"
	"github.com/devxfer/devxfer/internal/discovery"
	"github.com/devxfer/devxfer/internal/log"
	"github.com/devxfer/devxfer/internal/secretstore"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "stream this device's chat history to a receiving device",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"L"},
				Usage:   "Address to wait for the receiving device on",
				Value:   DefaultListenAddr,
				EnvVars: []string{"DEVXFER_LISTEN"},
			},
			&cli.BoolFlag{
				Name:    "announce",
				Usage:   "Announce this device over mDNS",
				Value:   true,
				EnvVars: []string{"DEVXFER_ANNOUNCE"},
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Instance name to announce (defaults to the hostname)",
			},
			&cli.BoolFlag{
				Name:  "rotate-secret",
				Usage: "Replace the stored transfer secret with a fresh one",
			},
		),
		Action: runSend,
	}
}

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "restore chat history from a sending device",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:    "peer",
				Aliases: []string{"p"},
				Usage:   "Address of the sending device (host:port or ws:// URL)",
				EnvVars: []string{"DEVXFER_PEER"},
			},
			&cli.BoolFlag{
				Name:  "discover",
				Usage: "Find the sending device over mDNS",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Id of the sending device; selects it during discovery and its remembered secret",
			},
			&cli.DurationFlag{
				Name:  "discover-timeout",
				Usage: "How long to look for a sending device",
				Value: devicetransfer.DefaultTransportConfig().ConnectTimeout,
			},
		),
		Action: runReceive,
	}
}

func runSend(c *cli.Context) error {
	db, err := openChat(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := deviceid.Ensure(db)
	if err != nil {
		return err
	}
	cfg := sessionConfig(c, id)

	journal, err := devicetransfer.OpenJournal(expandPath(c.String("journal")))
	if err != nil {
		return err
	}
	defer journal.Close()

	transport := c.String("transport")
	var ln devicetransfer.Listener
	var port int
	switch transport {
	case "tcp":
		l, err := devicetransfer.ListenTCP(c.String("listen"), cfg.Transport)
		if err != nil {
			return err
		}
		ln, port = l, l.Port()
	case "ws":
		l, err := devicetransfer.ListenWS(c.String("listen"), cfg.Transport)
		if err != nil {
			return err
		}
		ln, port = l, l.Port()
	default:
		return cli.Exit(fmt.Sprintf("unknown transport %q", transport), 1)
	}
	defer ln.Close()

	if !c.Bool("plain") {
		secret, err := pairingSecret(secrets, id, c.String("secret"), c.Bool("rotate-secret"))
		if err != nil {
			return err
		}
		ln = devicetransfer.SealListener(ln, secret)
		fmt.Printf("Transfer secret: %s\n", crypto.EncodeSecret(secret))
	}
	if cfg.Code != "" {
		fmt.Printf("Pairing code: %s\n", cfg.Code)
	}
	fmt.Printf("Device %s waiting on %s (%s)\n", id, ln.Addr(), transport)

	session := devicetransfer.NewSender(cfg, dao.NewChatDAO(db), journal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.Bool("announce") {
		name := c.String("name")
		if name == "" {
			name, _ = os.Hostname()
		}
		svc := discovery.Service{
			Name:      name,
			DeviceID:  id,
			Transport: transport,
			Version:   devicetransfer.ProtocolVersion,
			Port:      port,
		}
		go func() {
			if err := discovery.Announce(ctx, svc); err != nil {
				log.Warn().Err(err).Msg("Failed to announce device")
			}
		}()
	}

	return runSession(ctx, session, func(ctx context.Context) error {
		return session.ListenAndRun(ctx, ln)
	})
}

func runReceive(c *cli.Context) error {
	db, err := openChat(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := deviceid.Ensure(db)
	if err != nil {
		return err
	}
	cfg := sessionConfig(c, id)

	journal, err := devicetransfer.OpenJournal(expandPath(c.String("journal")))
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer, transport, peerID := c.String("peer"), c.String("transport"), c.String("device")
	if peerID != "" && !deviceid.Valid(peerID) {
		return cli.Exit(fmt.Sprintf("invalid device id %q", peerID), 1)
	}
	if peer == "" {
		if !c.Bool("discover") {
			return cli.Exit("either --peer or --discover is required", 1)
		}
		dctx, dcancel := context.WithTimeout(ctx, c.Duration("discover-timeout"))
		svc, err := discovery.Find(dctx, peerID)
		dcancel()
		if err != nil {
			return err
		}
		if svc.Version != 0 && svc.Version != devicetransfer.ProtocolVersion {
			log.Warn().Int("version", svc.Version).Msg("Discovered device speaks another protocol version")
		}
		peer, transport = svc.Addr(), svc.Transport
		if deviceid.Valid(svc.DeviceID) {
			peerID = svc.DeviceID
		}
		log.Info().Str("name", svc.Name).Str("device_id", svc.DeviceID).Str("addr", peer).Msg("Found sending device")
	}

	var dial devicetransfer.Dialer
	switch transport {
	case "tcp":
		dial = devicetransfer.DialTCP(peer, cfg.Transport)
	case "ws":
		dial = devicetransfer.DialWS(wsURL(peer), cfg.Transport)
	default:
		return cli.Exit(fmt.Sprintf("unknown transport %q", transport), 1)
	}

	if !c.Bool("plain") {
		secret, err := peerSecret(secrets, peerID, c.String("secret"))
		if err != nil {
			return err
		}
		dial = devicetransfer.SealDialer(dial, secret)
	}

	session := devicetransfer.NewReceiver(cfg, dao.NewChatDAO(db), journal)
	return runSession(ctx, session, func(ctx context.Context) error {
		return session.DialAndRun(ctx, dial)
	})
}

// secrets holds pairing secrets between runs.
var secrets = secretstore.Default

// pairingSecret returns the secret this sending device seals transfers
// with. A given secret replaces the stored one; otherwise the stored one is
// reused, or a fresh one generated when there is none or rotate is set.
func pairingSecret(store secretstore.Store, deviceID, encoded string, rotate bool) ([]byte, error) {
	name := deviceid.SecretName(deviceID)
	var secret []byte
	var err error
	switch {
	case encoded != "":
		secret, err = crypto.DecodeSecret(encoded)
	case rotate:
		secret, err = crypto.Generate(crypto.KeySize)
	default:
		secret, err = store.Get(name)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, secretstore.ErrNotFound) {
			return nil, fmt.Errorf("failed to read transfer secret: %w", err)
		}
		secret, err = crypto.Generate(crypto.KeySize)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Put(name, secret); err != nil {
		return nil, fmt.Errorf("failed to store transfer secret: %w", err)
	}
	return secret, nil
}

// peerSecret returns the secret shared with the sending device peerID. A
// given secret is remembered for that device; without one the remembered
// secret is used.
func peerSecret(store secretstore.Store, peerID, encoded string) ([]byte, error) {
	if encoded != "" {
		secret, err := crypto.DecodeSecret(encoded)
		if err != nil {
			return nil, err
		}
		if peerID != "" {
			if err := store.Put(deviceid.SecretName(peerID), secret); err != nil {
				log.Warn().Err(err).Msg("Failed to remember transfer secret")
			}
		}
		return secret, nil
	}
	if peerID != "" {
		secret, err := store.Get(deviceid.SecretName(peerID))
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, secretstore.ErrNotFound) {
			return nil, fmt.Errorf("failed to read transfer secret: %w", err)
		}
	}
	return nil, cli.Exit("--secret is required unless --plain is set or the device is already paired", 1)
}

func wsURL(peer string) string {
	if strings.HasPrefix(peer, "ws://") || strings.HasPrefix(peer, "wss://") {
		return peer
	}
	return "ws://" + peer + devicetransfer.WSPath
}

// runSession prints state changes, turns SIGINT into a cancel request and
// runs the session to its end.
func runSession(ctx context.Context, session *devicetransfer.Session, run func(context.Context) error) error {
	lastPercent := -10
	session.Bridge().OnStateChanged(func(s devicetransfer.TransferState) {
		if s.Kind() != devicetransfer.StateTransporting {
			fmt.Printf("State: %s\n", s)
			return
		}
		if s.Total() <= 0 {
			return
		}
		if percent := s.Processed() * 100 / s.Total(); percent/10 != lastPercent/10 {
			lastPercent = percent
			fmt.Printf("Progress: %d/%d (%d%%)\n", s.Processed(), s.Total(), percent)
		}
	})

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case sig := <-signalCh:
			log.Info().Str("signal", sig.String()).Msg("Received signal, cancelling transfer")
			session.Bridge().RequestCancel()
		case <-session.Bridge().Done():
		}
	}()

	err := run(ctx)
	if errors.Is(err, devicetransfer.ErrUserCancelled) {
		return cli.Exit("transfer cancelled", 130)
	}
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	stats := session.Stats()
	fmt.Printf("Transfer finished: %d sent, %d restored, %d kept, %d duplicates, %d malformed, %d unknown\n",
		stats.Sent, stats.Committed, stats.Skipped, stats.Duplicates, stats.Malformed, stats.Unknown)
	return nil
}
