// Package discovery announces a sending device on the local network and
// finds it from the receiving side over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/brutella/dnssd"
	dnssdlog "github.com/brutella/dnssd/log"

	"github.com/devxfer/devxfer/internal/log"
)

const (
	ServiceType = "_devxfer._tcp"
	Domain      = "local"
)

// TXT record keys.
const (
	textDeviceID  = "id"
	textTransport = "transport"
	textVersion   = "v"
)

var ErrNotFound = errors.New("no sending device found")

func init() {
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)
}

// Service is one announced sending device.
type Service struct {
	Name      string
	DeviceID  string
	Transport string
	Version   int
	IP        net.IP
	Port      int
}

// Addr returns host:port for dialing.
func (s Service) Addr() string {
	return net.JoinHostPort(s.IP.String(), strconv.Itoa(s.Port))
}

// Announce answers mDNS queries for svc until ctx ends. Cancellation is not
// an error.
func Announce(ctx context.Context, svc Service) error {
	cfg := dnssd.Config{
		Name:   svc.Name,
		Type:   ServiceType,
		Domain: Domain,
		Text: map[string]string{
			textDeviceID:  svc.DeviceID,
			textTransport: svc.Transport,
			textVersion:   strconv.Itoa(svc.Version),
		},
		Port: svc.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}
	if _, err := rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	log.Debug().Str("name", svc.Name).Int("port", svc.Port).Msg("Announcing device")
	if err := rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	return nil
}

// Browse calls found for every sending device seen until ctx ends.
func Browse(ctx context.Context, found func(Service)) error {
	add := func(e dnssd.BrowseEntry) {
		if svc, ok := serviceFromEntry(e); ok {
			found(svc)
		}
	}
	remove := func(e dnssd.BrowseEntry) {
		log.Debug().Str("name", e.Name).Msg("Device left")
	}

	err := dnssd.LookupType(ctx, fmt.Sprintf("%s.%s.", ServiceType, Domain), add, remove)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mDNS lookup failed: %w", err)
	}
	return nil
}

// Find returns the first sending device seen. A non-empty deviceID only
// matches that device.
func Find(ctx context.Context, deviceID string) (Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Service, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Browse(ctx, func(svc Service) {
			if deviceID != "" && svc.DeviceID != deviceID {
				return
			}
			select {
			case found <- svc:
			default:
			}
		})
	}()

	select {
	case svc := <-found:
		return svc, nil
	case err := <-errc:
		if err == nil {
			err = ctx.Err()
		}
		return Service{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
}

func serviceFromEntry(e dnssd.BrowseEntry) (Service, bool) {
	if len(e.IPs) == 0 || e.Port == 0 {
		return Service{}, false
	}
	ip := e.IPs[0]
	for _, candidate := range e.IPs {
		if candidate.To4() != nil {
			ip = candidate
			break
		}
	}
	version, _ := strconv.Atoi(e.Text[textVersion])
	transport := e.Text[textTransport]
	if transport == "" {
		transport = "tcp"
	}
	return Service{
		Name:      e.Name,
		DeviceID:  e.Text[textDeviceID],
		Transport: transport,
		Version:   version,
		IP:        ip,
		Port:      e.Port,
	}, true
}
