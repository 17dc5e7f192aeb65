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

package descriptor_test

import (
	"net"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/descriptor"
)

var _ = Describe("DatagramDescriptor", func() {
	var (
		reactor   *fakeReactor
		col       *collector
		fd        int
		localAddr *net.UDPAddr
		peerFd    int
		peerAddr  *net.UDPAddr
	)

	BeforeEach(func() {
		reactor = newFakeReactor()
		col = &collector{}
		fd, localAddr = udpSocket()
		peerFd, peerAddr = udpSocket()
	})

	AfterEach(func() {
		_ = unix.Close(peerFd)
	})

	Describe("echo exchange", func() {
		It("records the sender and replies to it without an explicit address", func() {
			dg, err := descriptor.NewDatagram(reactor, nil, fd, col.callback, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reactor.Add(dg)).To(Succeed())

			payload := []byte("ping")
			dest := &net.UDPAddr{IP: localAddr.IP, Port: localAddr.Port}
			n, serr := unix.Sendto(peerFd, payload, 0, udpSockaddr(dest))
			_ = n
			Expect(serr).NotTo(HaveOccurred())

			dg.OnReadable()

			reads := col.ofKind(descriptor.ConnectionRead)
			Expect(reads).To(HaveLen(1))
			Expect(string(reads[0].Data)).To(Equal("ping"))
			Expect(reads[0].Code).To(Equal(4))
			Expect(dg.ReturnAddress()).NotTo(BeNil())

			_, serr2 := dg.SendOutboundData([]byte("pong"))
			Expect(serr2).NotTo(HaveOccurred())
			Expect(dg.OutboundPageCount()).To(Equal(1))
			Expect(dg.SelectForWrite()).To(BeTrue())

			dg.OnWritable()
			Expect(dg.OutboundPageCount()).To(Equal(0))

			buf := make([]byte, 64)
			rn, _, rerr := unix.Recvfrom(peerFd, buf, 0)
			Expect(rerr).NotTo(HaveOccurred())
			Expect(string(buf[:rn])).To(Equal("pong"))
		})

		It("fails SendOutboundData before any sender has been seen", func() {
			dg, err := descriptor.NewDatagram(reactor, nil, fd, col.callback, nil)
			Expect(err).NotTo(HaveOccurred())

			_, serr := dg.SendOutboundData([]byte("x"))
			Expect(serr).To(HaveOccurred())
		})
	})

	Describe("zero-length datagram", func() {
		It("still selects writable once queued and is sent as an empty packet", func() {
			dg, err := descriptor.NewDatagram(reactor, nil, fd, col.callback, nil)
			Expect(err).NotTo(HaveOccurred())

			_, werr := dg.SendOutboundDatagram(nil, peerAddr)
			Expect(werr).NotTo(HaveOccurred())
			Expect(dg.OutboundPageCount()).To(Equal(1))
			Expect(dg.OutboundDataSize()).To(Equal(0))
			Expect(dg.SelectForWrite()).To(BeTrue())

			dg.OnWritable()
			Expect(dg.OutboundPageCount()).To(Equal(0))

			buf := make([]byte, 64)
			rn, _, rerr := unix.Recvfrom(peerFd, buf, 0)
			Expect(rerr).NotTo(HaveOccurred())
			Expect(rn).To(Equal(0))
		})
	})
})

// udpSockaddr converts a *net.UDPAddr into the raw sockaddr shape
// unix.Sendto expects, mirroring what addrToSockaddr does internally
// for IPv4 loopback addresses.
func udpSockaddr(a *net.UDPAddr) unix.Sockaddr {
	var ip [4]byte
	copy(ip[:], a.IP.To4())
	return &unix.SockaddrInet4{Port: a.Port, Addr: ip}
}
