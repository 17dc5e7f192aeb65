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
	"os"
	"time"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libcrt "github.com/nabbar/golib/certificates"

	"github.com/nabbar/reactor/descriptor"
)

const (
	testCertFile = "/tmp/cert.pem"
	testKeyFile  = "/tmp/key.pem"
)

var _ = Describe("TLS handshake over a ConnectionDescriptor pair", func() {
	var (
		reactorA, reactorB *fakeReactor
		colA, colB         *collector
		fdA, fdB           int
		connA, connB       *descriptor.ConnectionDescriptor
	)

	BeforeEach(func() {
		if _, err := os.Stat(testCertFile); err != nil {
			Skip("no test certificate available at " + testCertFile)
		}

		reactorA, reactorB = newFakeReactor(), newFakeReactor()
		colA, colB = &collector{}, &collector{}
		fdA, fdB = socketpair()

		var err error
		connA, err = descriptor.NewConnectionAttach(reactorA, nil, fdA, colA.callback, nil)
		Expect(err).NotTo(HaveOccurred())
		connB, err = descriptor.NewConnectionAttach(reactorB, nil, fdB, colB.callback, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = unix.Close(fdA)
		_ = unix.Close(fdB)
	})

	It("completes the handshake exactly once per side and verifies the peer", func() {
		serverCrt := libcrt.New()
		Expect(serverCrt.AddCertificatePairFile(testKeyFile, testCertFile)).To(Succeed())

		clientCrt := libcrt.New()
		Expect(clientCrt.AddRootCAFile(testCertFile)).To(Succeed())

		Expect(connB.SetTlsParms(serverCrt, "", true)).To(Succeed())
		Expect(connA.SetTlsParms(clientCrt, "localhost", false)).To(Succeed())

		Expect(connB.StartTls()).To(Succeed())
		Expect(connA.StartTls()).To(Succeed())

		// The handshake runs on each bridge's own background goroutine;
		// this loop plays the reactor's part, repeatedly giving both
		// sides a chance to flush ciphertext to their fd and read
		// whatever the peer wrote, until both report complete.
		verifiedA, verifiedB := false, false
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			connA.OnWritable()
			connB.OnWritable()

			connA.OnReadable()
			connB.OnReadable()

			if !verifiedA && len(colA.ofKind(descriptor.SslVerify)) > 0 {
				connA.AcceptSslPeer(true)
				verifiedA = true
			}
			if !verifiedB && len(colB.ofKind(descriptor.SslVerify)) > 0 {
				connB.AcceptSslPeer(true)
				verifiedB = true
			}

			if connA.IsHandshakeCompleted() && connB.IsHandshakeCompleted() {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		Expect(connA.IsHandshakeCompleted()).To(BeTrue())
		Expect(connB.IsHandshakeCompleted()).To(BeTrue())

		// Only the client verifies a peer certificate: the server does
		// not request one, so SSL_VERIFY fires on side A alone.
		Expect(verifiedA).To(BeTrue())

		Expect(colA.ofKind(descriptor.SslHandshakeCompleted)).To(HaveLen(1))
		Expect(colB.ofKind(descriptor.SslHandshakeCompleted)).To(HaveLen(1))
	})
})
