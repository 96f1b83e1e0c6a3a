package supervisor

import (
	"fmt"
	"net"
	"strconv"
)

// PortScanSpan is how many ports above the requested one are tried before
// asking the OS for any free port.
const PortScanSpan = 100

// PortFree reports whether host:port can be bound right now.
func PortFree(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindFreePort returns the first bindable port in [start, start+span),
// falling back to an OS-assigned port.
func FindFreePort(host string, start, span int) (int, error) {
	for port := start; port < start+span && port <= 65535; port++ {
		if PortFree(host, port) {
			return port, nil
		}
	}

	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("no free port near %d: %w", start, err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
