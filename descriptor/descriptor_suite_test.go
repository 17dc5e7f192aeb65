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
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/binding"
	"github.com/nabbar/reactor/descriptor"
)

/*
	Using https://onsi.github.io/ginkgo/
	Running with $> ginkgo -cover .
*/

func TestReactorDescriptor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Descriptor Suite")
}

// fakeReactor is a minimal, single-threaded stand-in for the real
// poller/timer-wheel implementation. It records every descriptor it
// is asked to track and every heartbeat deadline queued against it,
// but performs no polling of its own: tests drive OnReadable/
// OnWritable/Heartbeat directly, exactly as the real reactor would
// after observing poll() report readiness.
type fakeReactor struct {
	mu sync.Mutex

	loopTime     int64
	quantum      int64
	acceptCount  int
	closeSched   int
	added        map[binding.Handle]descriptor.Descriptor
	heartbeats   map[binding.Handle]int64
	loopBreaks   int
	inotifyReads int
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		quantum:     1000,
		acceptCount: 16,
		added:       map[binding.Handle]descriptor.Descriptor{},
		heartbeats:  map[binding.Handle]int64{},
	}
}

func (r *fakeReactor) Add(d descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added[d.Binding()] = d
	return nil
}

func (r *fakeReactor) Modify(d descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added[d.Binding()] = d
	return nil
}

func (r *fakeReactor) Deregister(d descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.added, d.Binding())
	return nil
}

func (r *fakeReactor) QueueHeartbeat(d descriptor.Descriptor, deadline int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[d.Binding()] = deadline
}

func (r *fakeReactor) ClearHeartbeat(d descriptor.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.heartbeats, d.Binding())
}

func (r *fakeReactor) CurrentLoopTime() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopTime
}

func (r *fakeReactor) RealTime() int64 { return r.CurrentLoopTime() }

func (r *fakeReactor) TimerQuantum() int64 { return r.quantum }

func (r *fakeReactor) Name2Address(host string, port int, _ int) (net.Addr, error) {
	return &net.UDPAddr{IP: net.ParseIP(host), Port: port}, nil
}

func (r *fakeReactor) SimultaneousAcceptCount() int { return r.acceptCount }

func (r *fakeReactor) IncCloseScheduled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeSched++
}

func (r *fakeReactor) DecCloseScheduled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeSched--
}

func (r *fakeReactor) ReadLoopBreaker() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loopBreaks++
	return nil
}

func (r *fakeReactor) ReadInotifyEvents() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inotifyReads++
	return nil
}

func (r *fakeReactor) advance(micros int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loopTime += micros
}

// socketpair returns two connected, nonblocking AF_UNIX SOCK_STREAM
// fds, standing in for a real TCP connection without needing the
// network stack or root privileges.
func socketpair() (a, b int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).NotTo(HaveOccurred())
	Expect(unix.SetNonblock(fds[0], true)).To(Succeed())
	Expect(unix.SetNonblock(fds[1], true)).To(Succeed())
	return fds[0], fds[1]
}

// datagramPair returns two connected, nonblocking AF_UNIX SOCK_DGRAM
// fds, standing in for a UDP socket pair.
func datagramPair() (a, b int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	Expect(err).NotTo(HaveOccurred())
	Expect(unix.SetNonblock(fds[0], true)).To(Succeed())
	Expect(unix.SetNonblock(fds[1], true)).To(Succeed())
	return fds[0], fds[1]
}

// udpSocket binds an ephemeral UDP port on loopback and hands back its
// raw, nonblocking fd plus the address it's bound to, letting tests
// exercise DatagramDescriptor over a real socket (AF_UNIX datagram
// sockets report no peer address on a connected pair, which wouldn't
// exercise sockaddrToAddr/addrToSockaddr the way a real UDP exchange
// does).
func udpSocket() (fd int, addr *net.UDPAddr) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	Expect(err).NotTo(HaveOccurred())

	laddr := conn.LocalAddr().(*net.UDPAddr)

	f, err := conn.File()
	Expect(err).NotTo(HaveOccurred())
	Expect(conn.Close()).To(Succeed())

	raw := int(f.Fd())
	Expect(unix.SetNonblock(raw, true)).To(Succeed())

	return raw, laddr
}

// collector gathers every event emitted by a descriptor under test,
// in order, for assertion.
type collector struct {
	mu     sync.Mutex
	events []descriptor.Event
}

func (c *collector) callback(ev descriptor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) all() []descriptor.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]descriptor.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) ofKind(k descriptor.EventKind) []descriptor.Event {
	var out []descriptor.Event
	for _, ev := range c.all() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}
