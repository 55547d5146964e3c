package scpi

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the raw SCPI socket port Rohde & Schwarz instruments
// listen on.
const DefaultPort = 5025

// Resource is a parsed instrument address.
type Resource struct {
	Board int
	Host  string
	Port  int
}

// Addr returns the host:port dial string.
func (r Resource) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func (r Resource) String() string {
	return fmt.Sprintf("TCPIP%d::%s::%d::SOCKET", r.Board, r.Host, r.Port)
}

// ParseResource accepts VISA style TCPIP resource names and plain
// network addresses:
//
//	TCPIP0::172.16.10.10::5025::SOCKET
//	TCPIP0::172.16.10.10::inst0::INSTR   (raw socket on DefaultPort)
//	TCPIP::fpc.local::INSTR
//	172.16.10.10:5025
//	fpc.local
//
// HiSLIP, GPIB, USB and serial resources yield ErrUnsupportedResource.
func ParseResource(name string) (Resource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Resource{}, fmt.Errorf("%w: empty resource name", ErrUnsupportedResource)
	}
	if !strings.Contains(name, "::") {
		return parseHostPort(name)
	}

	parts := strings.Split(name, "::")
	iface := strings.ToUpper(parts[0])
	if !strings.HasPrefix(iface, "TCPIP") {
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, name)
	}
	res := Resource{}
	if board := iface[len("TCPIP"):]; board != "" {
		n, err := strconv.Atoi(board)
		if err != nil || n < 0 {
			return Resource{}, fmt.Errorf("%w: bad board number in %q", ErrUnsupportedResource, name)
		}
		res.Board = n
	}

	class := strings.ToUpper(parts[len(parts)-1])
	switch {
	case class == "SOCKET" && len(parts) == 4:
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return Resource{}, fmt.Errorf("%w: bad port in %q", ErrUnsupportedResource, name)
		}
		res.Host, res.Port = parts[1], port
	case class == "INSTR" && (len(parts) == 3 || len(parts) == 4):
		if len(parts) == 4 && !strings.HasPrefix(strings.ToLower(parts[2]), "inst") {
			return Resource{}, fmt.Errorf("%w: device %q in %q", ErrUnsupportedResource, parts[2], name)
		}
		res.Host, res.Port = parts[1], DefaultPort
	default:
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, name)
	}
	if res.Host == "" {
		return Resource{}, fmt.Errorf("%w: missing host in %q", ErrUnsupportedResource, name)
	}
	return res, nil
}

func parseHostPort(name string) (Resource, error) {
	host, portStr, err := net.SplitHostPort(name)
	if err != nil {
		// No port given.
		return Resource{Host: strings.Trim(name, "[]"), Port: DefaultPort}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Resource{}, fmt.Errorf("%w: bad port in %q", ErrUnsupportedResource, name)
	}
	if host == "" {
		return Resource{}, fmt.Errorf("%w: missing host in %q", ErrUnsupportedResource, name)
	}
	return Resource{Host: host, Port: port}, nil
}
