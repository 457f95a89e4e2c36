//go:build linux

package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ipRouterAlert is Linux's IPPROTO_IP option value for IP_ROUTER_ALERT
// (5); golang.org/x/sys/unix does not expose it as a named constant on
// every build target, so it is declared here as a literal, the same way
// the reference raw-socket opener above falls back to numeric protocol
// constants when a symbolic one isn't available for a given platform.
const ipRouterAlert = 5

// bind creates and configures the UDP (or, with cfg.Raw, IPPROTO 113 raw)
// socket a Socket reads and writes through, following spec.md §4.8:
// resolve interface/group NLAs, create the socket, set IP_ROUTER_ALERT
// where available, hop limit, TOS, multicast-loop, and IP_HDRINCL for raw
// mode. Grounded on the reference corpus's lowest-level raw-socket opener
// (unix.Socket + unix.SetsockoptInt + unix.Bind), adapted from
// AF_PACKET/link-layer capture to AF_INET/UDP multicast.
func bind(cfg Config, ifaceNLA, groupNLA net.IP, port uint16) (fd int, err error) {
	sockType := unix.SOCK_DGRAM
	proto := 0
	if cfg.Raw {
		sockType = unix.SOCK_RAW
		proto = 113 // PGM, per RFC 3208
	}

	fd, err = unix.Socket(unix.AF_INET, sockType, proto)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			unix.Close(fd)
		}
	}()

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return -1, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if cfg.Raw {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			return -1, fmt.Errorf("IP_HDRINCL: %w", err)
		}
	}
	if cfg.Hops > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, cfg.Hops); err != nil {
			return -1, fmt.Errorf("IP_MULTICAST_TTL: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, cfg.Hops); err != nil {
			return -1, fmt.Errorf("IP_TTL: %w", err)
		}
	}
	loopVal := 0
	if cfg.MulticastLoop {
		loopVal = 1
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, loopVal); err != nil {
		return -1, fmt.Errorf("IP_MULTICAST_LOOP: %w", err)
	}
	if cfg.TOS != 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, int(cfg.TOS)); err != nil {
			return -1, fmt.Errorf("IP_TOS: %w", err)
		}
	}
	if cfg.IPRouterAlert {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, ipRouterAlert, 1); err != nil {
			return -1, fmt.Errorf("IP_ROUTER_ALERT: %w", err)
		}
	}

	ifAddr, err := to4(ifaceNLA)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port), Addr: ifAddr}); err != nil {
		return -1, fmt.Errorf("bind: %w", err)
	}

	if groupNLA != nil && groupNLA.IsMulticast() {
		grpAddr, err := to4(groupNLA)
		if err != nil {
			return -1, err
		}
		mreq := &unix.IPMreq{Multiaddr: grpAddr, Interface: ifAddr}
		if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			return -1, fmt.Errorf("IP_ADD_MEMBERSHIP: %w", err)
		}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return -1, fmt.Errorf("SetNonblock: %w", err)
	}

	ok = true
	return fd, nil
}

// closeFd releases the fd bind opened.
func closeFd(fd int) error {
	return unix.Close(fd)
}

// unixSockaddrToUDPAddr resolves the local address fd is bound to, for
// tests that bind with port 0 and need to learn the OS-assigned port.
func unixSockaddrToUDPAddr(fd int) (*net.UDPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil, fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return &net.UDPAddr{IP: net.IPv4(sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3]), Port: sa4.Port}, nil
}

func to4(ip net.IP) ([4]byte, error) {
	var out [4]byte
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	copy(out[:], v4)
	return out, nil
}

// sendTo writes buf to dst:port on fd and returns unix.Sendto's error
// unchanged; EAGAIN is not translated.
func sendTo(fd int, buf []byte, dst net.IP, port uint16) error {
	addr, err := to4(dst)
	if err != nil {
		return err
	}
	return unix.Sendto(fd, buf, 0, &unix.SockaddrInet4{Port: int(port), Addr: addr})
}

// recvFrom reads one datagram from fd, reporting unix.EAGAIN/EWOULDBLOCK
// as (nil, nil, nil) rather than an error.
func recvFrom(fd int, buf []byte) ([]byte, net.IP, error) {
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	sa4, ok := from.(*unix.SockaddrInet4)
	if !ok {
		return buf[:n], nil, nil
	}
	return buf[:n], net.IPv4(sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3]), nil
}
