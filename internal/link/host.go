package link

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/logging"
)

// AddressLookup returns a usable address on the named interface ("" = any).
type AddressLookup func(iface string) (string, error)

// HostRadio treats an association attempt as a probe of the host's own
// network configuration: the operating system manages the actual link, and
// the attempt succeeds once an interface has a usable unicast address.
type HostRadio struct {
	d          *dispatcher
	iface      string
	lookup     AddressLookup
	probeDelay time.Duration
	logger     *logging.Logger
}

// NewHostRadio creates a HostRadio publishing on bus.
func NewHostRadio(bus *event.Bus, iface string, logger *logging.Logger) *HostRadio {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &HostRadio{
		d:          newDispatcher(bus),
		iface:      iface,
		lookup:     InterfaceAddress,
		probeDelay: time.Second,
		logger:     logger.WithComponent("radio").With("driver", "host"),
	}
}

// Start implements Radio.
func (r *HostRadio) Start(_ context.Context, creds Credentials) error {
	r.d.start()
	r.logger.Debug("radio started", "interface", r.iface, "ssid", creds.SSID)
	r.d.post(event.NewRadioStartedEvent(r.iface))
	return nil
}

// Associate implements Radio. The probe runs on its own goroutine. A failed
// probe is reported after probeDelay so that retries are paced.
func (r *HostRadio) Associate(ctx context.Context) error {
	go r.probe(ctx)
	return nil
}

func (r *HostRadio) probe(ctx context.Context) {
	addr, err := r.lookup(r.iface)
	if err != nil {
		timer := time.NewTimer(r.probeDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-r.d.stopCh:
			return
		case <-timer.C:
		}
		r.d.post(event.NewRadioDisconnectedEvent(err.Error()))
		return
	}
	r.d.post(event.NewRadioGotAddressEvent(addr))
}

// Close stops notification delivery.
func (r *HostRadio) Close() error {
	r.d.stop()
	return nil
}

// InterfaceAddress returns the first global unicast address of an up,
// non-loopback interface. A non-empty name restricts the search to it.
func InterfaceAddress(name string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, ifi := range ifaces {
		if name != "" && ifi.Name != name {
			continue
		}
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
				return ipnet.IP.String(), nil
			}
		}
	}

	if name != "" {
		return "", fmt.Errorf("no usable address on interface %s", name)
	}
	return "", fmt.Errorf("no usable address on any interface")
}
