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
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"sync"
	"time"

	libcrt "github.com/nabbar/golib/certificates"
)

// sslboxInputChunkSize bounds how much plaintext sendOutboundData
// hands putPlaintext at a time, per §4.7.
const sslboxInputChunkSize = 16 * 1024

// plaintextPullChunk is how much plaintext getPlaintext pulls from the
// handshake/read goroutine into the dispatch path at a time.
const plaintextPullChunk = 2 * 1024

// pipeConn adapts two mutex-guarded byte queues to the net.Conn shape
// crypto/tls needs. Read blocks the calling goroutine until data is
// available or the pipe is closed; Write only appends and never
// blocks. Only the TlsBridge's background pump goroutine calls Read;
// the reactor thread writes through it (tls.Conn.Write in putPlaintext)
// and uses the nonblocking feed/drain helpers.
type pipeConn struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  bytes.Buffer
	outbound bytes.Buffer
	closed   bool
}

func newPipeConn() *pipeConn {
	p := &pipeConn{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipeConn) feedCiphertext(b []byte) {
	p.mu.Lock()
	p.inbound.Write(b)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipeConn) drainOutbound(max int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outbound.Len() == 0 {
		return nil
	}
	n := p.outbound.Len()
	if n > max {
		n = max
	}
	out := make([]byte, n)
	_, _ = p.outbound.Read(out)
	return out
}

func (p *pipeConn) pendingOutbound() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbound.Len()
}

func (p *pipeConn) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inbound.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.inbound.Len() == 0 && p.closed {
		return 0, io.EOF
	}
	return p.inbound.Read(b)
}

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.outbound.Write(b)
	p.mu.Unlock()
	return len(b), nil
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

func (p *pipeConn) LocalAddr() net.Addr                { return nil }
func (p *pipeConn) RemoteAddr() net.Addr               { return nil }
func (p *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (p *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// TlsBridge is the optional capability a ConnectionDescriptor wraps
// itself with to speak TLS over an otherwise plain byte stream. It
// owns a crypto/tls.Conn running against an in-memory pipe: a
// background goroutine drives the blocking handshake/Read calls
// crypto/tls requires, while putCiphertext/getPlaintext/putPlaintext/
// getCiphertext give the reactor thread a nonblocking view over
// mutex-guarded buffers, matching the rest of the core's
// never-block contract.
type TlsBridge struct {
	mu sync.Mutex

	cfg      *tls.Config
	isServer bool
	sni      string

	pipe *pipeConn
	conn *tls.Conn

	started   bool
	handshake bool
	fatal     bool

	plainIn  bytes.Buffer // decrypted bytes ready for getPlaintext
	plainErr error

	verifyPending  bool
	verifyDecision chan bool

	onVerify func()
}

// newTlsBridge builds a bridge that is not yet started; setTlsParms
// (here, the constructor argument) must be supplied before startTls.
func newTlsBridge(cfg libcrt.TLSConfig, serverName string, isServer bool) *TlsBridge {
	b := &TlsBridge{
		isServer: isServer,
		sni:      serverName,
	}
	if cfg != nil {
		b.cfg = cfg.TLS(serverName)
	}
	if b.cfg == nil {
		b.cfg = &tls.Config{ServerName: serverName}
	}

	b.cfg = b.cfg.Clone()
	b.cfg.VerifyPeerCertificate = b.verifyPeerCertificate
	return b
}

// setTlsParms replaces the underlying *tls.Config. Only valid before
// startTls; once the pipe/goroutine exist, parameters are frozen.
func (b *TlsBridge) setTlsParms(cfg libcrt.TLSConfig, serverName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrorTlsAlreadyStarted.Error()
	}
	b.sni = serverName
	if cfg != nil {
		b.cfg = cfg.TLS(serverName)
	}
	if b.cfg == nil {
		b.cfg = &tls.Config{ServerName: serverName}
	}
	b.cfg = b.cfg.Clone()
	b.cfg.VerifyPeerCertificate = b.verifyPeerCertificate
	return nil
}

// startTls spins up the pipe and the background handshake/pump
// goroutine. Calls after the first are no-ops.
func (b *TlsBridge) startTls() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	if b.cfg == nil {
		b.mu.Unlock()
		return ErrorTlsNotConfigured.Error()
	}
	b.started = true
	b.pipe = newPipeConn()
	if b.isServer {
		b.conn = tls.Server(b.pipe, b.cfg)
	} else {
		b.conn = tls.Client(b.pipe, b.cfg)
	}
	b.mu.Unlock()

	go b.pump()
	return nil
}

// pump runs on its own goroutine: it performs the handshake, then
// loops decrypting inbound bytes into plainIn until the connection
// errors or is closed.
func (b *TlsBridge) pump() {
	if err := b.conn.Handshake(); err != nil {
		b.mu.Lock()
		b.fatal = true
		b.plainErr = err
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.handshake = true
	b.mu.Unlock()

	buf := make([]byte, plaintextPullChunk)
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			b.mu.Lock()
			b.plainIn.Write(buf[:n])
			b.mu.Unlock()
		}
		if err != nil {
			b.mu.Lock()
			if err != io.EOF {
				b.fatal = true
				b.plainErr = err
			}
			b.mu.Unlock()
			return
		}
	}
}

// verifyPeerCertificate is wired as tls.Config.VerifyPeerCertificate.
// It runs on the pump goroutine, inside the handshake; it emits
// SSL_VERIFY to the reactor thread and blocks until acceptSslPeer
// answers, preserving the bridge's documented callback contract
// without borrowing the reactor's own thread.
func (b *TlsBridge) verifyPeerCertificate(_ [][]byte, _ [][]*x509.Certificate) error {
	b.mu.Lock()
	b.verifyPending = true
	b.verifyDecision = make(chan bool, 1)
	cb := b.onVerify
	ch := b.verifyDecision
	b.mu.Unlock()

	if cb != nil {
		cb()
	} else {
		return nil
	}

	if ok := <-ch; !ok {
		return ErrorTlsHandshake.Error()
	}
	return nil
}

// acceptSslPeer is called by user code from within the SSL_VERIFY
// callback to accept or reject the peer's certificate chain.
func (b *TlsBridge) acceptSslPeer(ok bool) {
	b.mu.Lock()
	ch := b.verifyDecision
	b.verifyPending = false
	b.mu.Unlock()
	if ch != nil {
		ch <- ok
	}
}

// putCiphertext feeds peer bytes into the bridge for decryption.
func (b *TlsBridge) putCiphertext(buf []byte) {
	if b.pipe == nil {
		return
	}
	b.pipe.feedCiphertext(buf)
}

// getPlaintext drains up to len(dst) decrypted bytes into dst. It
// returns n>=0, 0 for would-block, -1 if the handshake aborted
// pending user decision, or -2 for a fatal handshake/read failure.
func (b *TlsBridge) getPlaintext(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fatal {
		return -2
	}
	if b.verifyPending {
		return -1
	}
	if b.plainIn.Len() == 0 {
		return 0
	}
	n, _ := b.plainIn.Read(dst)
	return n
}

// putPlaintext absorbs application bytes for encryption. Passing nil
// with len 0 absorbs nothing: it returns -1 if the bridge is in a
// fatal state and 0 otherwise, since crypto/tls writes its output
// straight into the pipe. Returns n>=0 bytes absorbed, -1 fatal, 0 for
// would-block.
func (b *TlsBridge) putPlaintext(data []byte) int {
	b.mu.Lock()
	if b.fatal {
		b.mu.Unlock()
		return -1
	}
	if !b.handshake {
		b.mu.Unlock()
		return 0
	}
	b.mu.Unlock()

	if len(data) == 0 {
		return 0
	}

	n, err := b.conn.Write(data)
	if err != nil {
		b.mu.Lock()
		b.fatal = true
		b.plainErr = err
		b.mu.Unlock()
		return -1
	}
	return n
}

// getCiphertext drains up to max bytes of encrypted output the pump
// goroutine produced (handshake flight or encrypted application
// data), ready to be written to the raw socket.
func (b *TlsBridge) getCiphertext(max int) []byte {
	if b.pipe == nil {
		return nil
	}
	return b.pipe.drainOutbound(max)
}

// canGetCiphertext reports whether getCiphertext would return data.
func (b *TlsBridge) canGetCiphertext() bool {
	if b.pipe == nil {
		return false
	}
	return b.pipe.pendingOutbound() > 0
}

func (b *TlsBridge) isHandshakeCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handshake
}

func (b *TlsBridge) peerCert() *x509.Certificate {
	if b.conn == nil {
		return nil
	}
	state := b.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

func (b *TlsBridge) cipherName() string {
	if b.conn == nil {
		return ""
	}
	return tls.CipherSuiteName(b.conn.ConnectionState().CipherSuite)
}

func (b *TlsBridge) cipherBits() int {
	// crypto/tls does not expose an effective key-size accessor; the
	// cipher suite name is the portable way to identify strength.
	return 0
}

func (b *TlsBridge) cipherProtocol() uint16 {
	if b.conn == nil {
		return 0
	}
	return b.conn.ConnectionState().Version
}

func (b *TlsBridge) sniHostname() string {
	return b.sni
}
