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
	"strings"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/binding"
	"github.com/nabbar/reactor/descriptor"
)

var _ = Describe("Proxying", func() {
	var (
		reactor      *fakeReactor
		registry     *binding.Registry
		colA, colB   *collector
		fdA, fdAPeer int
		fdB, fdBPeer int
		connA, connB *descriptor.ConnectionDescriptor
	)

	BeforeEach(func() {
		reactor = newFakeReactor()
		registry = binding.New()
		colA, colB = &collector{}, &collector{}

		fdA, fdAPeer = socketpair()
		fdB, fdBPeer = socketpair()

		var err error
		connA, err = descriptor.NewConnectionAttach(reactor, registry, fdA, colA.callback, nil)
		Expect(err).NotTo(HaveOccurred())
		connB, err = descriptor.NewConnectionAttach(reactor, registry, fdB, colB.callback, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = unix.Close(fdAPeer)
		_ = unix.Close(fdBPeer)
	})

	Describe("proxy with limit", func() {
		It("splits a chunk at the length boundary and replays the remainder", func() {
			Expect(connA.StartProxy(connB.Binding(), 0, 100)).To(Succeed())

			payload := strings.Repeat("x", 100) + strings.Repeat("y", 50)
			_, werr := unix.Write(fdAPeer, []byte(payload))
			Expect(werr).NotTo(HaveOccurred())

			connA.OnReadable()

			Expect(connB.OutboundDataSize()).To(Equal(100))

			completed := colA.ofKind(descriptor.ProxyCompleted)
			Expect(completed).To(HaveLen(1))

			reads := colA.ofKind(descriptor.ConnectionRead)
			Expect(reads).To(HaveLen(1))
			Expect(string(reads[0].Data)).To(Equal(strings.Repeat("y", 50)))
		})
	})

	Describe("backpressure", func() {
		It("pauses the source once the target's outbound queue crosses bufsize, then resumes it on drain", func() {
			Expect(connA.StartProxy(connB.Binding(), 16, 0)).To(Succeed())

			_, werr := unix.Write(fdAPeer, []byte(strings.Repeat("z", 32)))
			Expect(werr).NotTo(HaveOccurred())

			connA.OnReadable()

			Expect(connA.IsPaused()).To(BeTrue())
			Expect(connB.OutboundDataSize()).To(Equal(32))

			connB.OnWritable()

			Expect(connB.OutboundDataSize()).To(Equal(0))
			Expect(connA.IsPaused()).To(BeFalse())
		})
	})

	Describe("teardown", func() {
		It("notifies the source with PROXY_TARGET_UNBOUND when the target closes", func() {
			Expect(connA.StartProxy(connB.Binding(), 0, 0)).To(Succeed())

			connB.Close()

			unbound := colA.ofKind(descriptor.ProxyTargetUnbound)
			Expect(unbound).To(HaveLen(1))
		})
	})
})
