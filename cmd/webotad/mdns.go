package main

import (
	"errors"
	"log/slog"
	"net"

	"github.com/grandcat/zeroconf"

	"openenterprise/webota/version"
)

const (
	mdnsService = "_http._tcp"
	mdnsDomain  = "local."
)

// advertiser announces the panel over mDNS.
type advertiser struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// advertise registers instance for the HTTP listener at addr.
func advertise(instance, device string, addr net.Addr, logger *slog.Logger) (*advertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, errors.New("mdns: http listener is not TCP")
	}
	if instance == "" {
		instance = device
	}
	server, err := zeroconf.Register(instance, mdnsService, mdnsDomain, tcp.Port, txtRecords(device), nil)
	if err != nil {
		return nil, err
	}
	logger.Info("mdns:registered",
		slog.String("instance", instance),
		slog.Int("port", tcp.Port))
	return &advertiser{server: server, logger: logger}, nil
}

func txtRecords(device string) []string {
	return []string{
		"device=" + device,
		"version=" + version.String(),
		"path=/",
		"upload=/update",
	}
}

// Close withdraws the announcement. A nil advertiser is a no-op.
func (a *advertiser) Close() {
	if a == nil {
		return
	}
	a.server.Shutdown()
	a.logger.Info("mdns:shutdown")
}
