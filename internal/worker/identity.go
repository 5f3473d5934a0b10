package worker

import (
	"fmt"
	"net"
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// ResolveIdentity suffixes an executor name with its local IP, matching
// the original implementation's worker_id
// (EXECUTOR_NAME + "-" + gethostbyname(gethostname())). EXECUTOR_NAME is a
// prefix, not the full worker identity (spec.md §6).
func ResolveIdentity(name string) string {
	ip, err := localIP()
	if err != nil {
		logging.Log.WithError(err).Warn("failed to resolve local IP for worker identity, using name as-is")
		return name
	}
	return fmt.Sprintf("%s-%s", name, ip)
}

// localIP resolves the host's own outbound address the way gethostbyname
// (gethostname()) does for the original: look up the addresses for our own
// hostname and take the first non-loopback one. Falling back to dialing an arbitrary outbound UDP socket if the
// hostname doesn't resolve locally (common in minimal containers without
// /etc/hosts entries for themselves).
func localIP() (string, error) {
	hostname, err := os.Hostname()
	if err == nil {
		if addrs, lookupErr := net.LookupHost(hostname); lookupErr == nil {
			for _, addr := range addrs {
				if parsed := net.ParseIP(addr); parsed != nil && !parsed.IsLoopback() {
					return addr, nil
				}
			}
		}
	}

	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to determine local IP: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
