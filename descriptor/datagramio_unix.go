//go:build !windows

/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package descriptor

import (
	"net"

	"golang.org/x/sys/unix"
)

// recvfromDatagram reads one nonblocking datagram and the sender's
// address, uniformly for IPv4 and IPv6 (§6: "handled uniformly via
// sockaddr_in6-sized storage; the family field discriminates" — the
// unix package's Sockaddr variants play that role in Go).
func recvfromDatagram(fd int, buf []byte) (int, net.Addr, error) {
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		return 0, nil, err
	}
	return n, sockaddrToAddr(from), nil
}

func sendtoDatagram(fd int, data []byte, to net.Addr) error {
	sa, err := addrToSockaddr(to)
	if err != nil {
		return err
	}
	return unix.Sendto(fd, data, 0, sa)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}

func addrToSockaddr(addr net.Addr) (unix.Sockaddr, error) {
	udp, ok := addr.(*net.UDPAddr)
	if !ok || udp == nil {
		return nil, ErrorDatagramAddressResolve.Error()
	}

	if ip4 := udp.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: udp.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}

	ip6 := udp.IP.To16()
	if ip6 == nil {
		return nil, ErrorDatagramAddressResolve.Error()
	}
	sa := &unix.SockaddrInet6{Port: udp.Port}
	copy(sa.Addr[:], ip6)
	return sa, nil
}
