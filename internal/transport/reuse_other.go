//go:build !unix

package transport

import "net"

// listenReusable falls back to a plain bind on non-unix platforms; Windows
// already permits rebinding a just-released UDP port without SO_REUSEADDR
// in the common case this engine targets (loopback/LAN testing).
func listenReusable(laddr *net.UDPAddr) (*net.UDPConn, error) {
	return net.ListenUDP("udp", laddr)
}
