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
	libcrt "github.com/nabbar/golib/certificates"
	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/reactor/binding"
)

const (
	maxReadIterations = 10
	readBufferSize    = 16 * 1024
	maxWriteSegments  = 16
	maxWriteCoalesced = 16 * 1024
)

// ConnectionDescriptor is the stream I/O state machine: connect, read,
// write, pause/resume, watch-only, optional TLS, optional proxying.
// It is the largest single piece of the core (§4.4-§4.6, §4.12).
type ConnectionDescriptor struct {
	base

	server bool // true if born from accept(), false if an outbound connect
	tls    *TlsBridge

	sslHandshakeEmitted bool
}

// NewConnectionFromAccept wraps a freshly accepted fd, already
// configured nonblocking+CLOEXEC+TCP_NODELAY by the acceptor.
func NewConnectionFromAccept(reactor Reactor, registry *binding.Registry, fd int, cb Callback, log liblog.FuncLog) (*ConnectionDescriptor, error) {
	return newConnection(reactor, registry, fd, true, false, cb, log)
}

// NewConnectionConnect starts an outbound nonblocking connect; fd must
// already have had connect(2) issued by the caller (connect() itself
// is outside this package's scope — the reactor or a dialer helper
// performs it and hands over the resulting fd with connectPending
// set).
func NewConnectionConnect(reactor Reactor, registry *binding.Registry, fd int, cb Callback, log liblog.FuncLog) (*ConnectionDescriptor, error) {
	c, err := newConnection(reactor, registry, fd, false, false, cb, log)
	if err != nil {
		return nil, err
	}
	c.connectPending = true
	return c, nil
}

// NewConnectionAttach adopts an externally-owned fd (already
// configured by the caller) without touching its socket options or
// ever closing it, per invariant 8.
func NewConnectionAttach(reactor Reactor, registry *binding.Registry, fd int, cb Callback, log liblog.FuncLog) (*ConnectionDescriptor, error) {
	return newConnection(reactor, registry, fd, false, true, cb, log)
}

func newConnection(reactor Reactor, registry *binding.Registry, fd int, server, attached bool, cb Callback, log liblog.FuncLog) (*ConnectionDescriptor, error) {
	if reactor == nil {
		return nil, ErrorMissingReactor.Error()
	}
	if fd == invalidSocket {
		return nil, ErrorInvalidSocket.Error()
	}

	c := &ConnectionDescriptor{server: server}
	c.init(reactor, registry, binding.KindConnection, fd, cb, log)
	c.attached = attached

	if !attached {
		if err := setNonblockingCloexec(fd); err != nil {
			return nil, ErrorSocketSetup.Error(err)
		}
		if err := setTcpNoDelay(fd); err != nil {
			return nil, ErrorSocketSetup.Error(err)
		}
	}

	if registry != nil {
		c.handle = registry.Register(c)
	}
	return c, nil
}

func (c *ConnectionDescriptor) BindKind() binding.Kind { return binding.KindConnection }

// --- readiness predicates (§4.3) ---

func (c *ConnectionDescriptor) SelectForRead() bool {
	if c.paused || c.connectPending {
		return false
	}
	if c.watchOnly {
		return c.notifyReadable
	}
	return true
}

func (c *ConnectionDescriptor) SelectForWrite() bool {
	if c.paused {
		return false
	}
	if c.connectPending {
		return true
	}
	if c.watchOnly {
		return c.notifyWritable
	}
	return c.outboundSize > 0
}

func (c *ConnectionDescriptor) ShouldDelete() bool { return c.shouldDelete() }

// Close runs the hard-close path. When a close was already scheduled
// (peer close, OnError, ...) the UNBOUND reason is the one recorded so
// far (0 for a graceful close); a Close on an open descriptor reports
// UnbindReasonLocalStop.
func (c *ConnectionDescriptor) Close() {
	reason := UnbindReasonLocalStop
	if c.state == stateCloseNow || c.state == stateCloseAfterWriting {
		reason = c.unbindReason
	}
	c.hardClose(c, reason)
}

// OutboundDataSize reports the sum of unwritten bytes across every
// queued outbound page.
func (c *ConnectionDescriptor) OutboundDataSize() int { return c.outboundDataSize() }

// --- pause/resume/watch-only (§4.6) ---

func (c *ConnectionDescriptor) Pause() (bool, error) {
	changed, err := c.pause()
	if err == nil && changed {
		c.refreshInterest(c)
	}
	return changed, err
}

func (c *ConnectionDescriptor) Resume() (bool, error) {
	changed, err := c.resume()
	if err == nil && changed {
		c.refreshInterest(c)
	}
	return changed, err
}

// IsPaused reports whether reads are currently suspended, whether by
// explicit Pause() or by proxy backpressure.
func (c *ConnectionDescriptor) IsPaused() bool { return c.isPaused() }

func (c *ConnectionDescriptor) SetNotifyReadable(on bool) error {
	if !c.watchOnly {
		return ErrorNotWatchOnly.Error()
	}
	c.notifyReadable = on
	c.refreshInterest(c)
	return nil
}

func (c *ConnectionDescriptor) SetNotifyWritable(on bool) error {
	if !c.watchOnly {
		return ErrorNotWatchOnly.Error()
	}
	c.notifyWritable = on
	c.refreshInterest(c)
	return nil
}

func (c *ConnectionDescriptor) SetWatchOnly(on bool) { c.watchOnly = on }

// OnError is called by the reactor when the poller collapses
// HUP/ERR into a single error condition (§4.6).
func (c *ConnectionDescriptor) OnError() {
	if c.watchOnly {
		if c.notifyReadable {
			c.emit(ConnectionNotifyReadable, nil, 0)
		}
		if c.notifyWritable {
			c.emit(ConnectionNotifyWritable, nil, 0)
		}
		return
	}
	c.scheduleClose(false)
}

// --- keepalive (§4.12) ---

func (c *ConnectionDescriptor) EnableKeepalive(idle, intvl, cnt int) error {
	if err := setKeepalive(c.fd, idle, intvl, cnt); err != nil {
		return ErrorKeepAliveSetup.Error(err)
	}
	return nil
}

func (c *ConnectionDescriptor) DisableKeepalive() error {
	if err := disableKeepaliveOpt(c.fd); err != nil {
		return ErrorKeepAliveSetup.Error(err)
	}
	return nil
}

// --- heartbeat / timeouts (§5) ---

func (c *ConnectionDescriptor) Heartbeat(now int64) {
	if c.connectPending {
		if c.pendingConnectTimeout > 0 && now-c.createdAt >= c.pendingConnectTimeout {
			c.unbindReason = UnbindReasonTimeout
			c.hardClose(c, UnbindReasonTimeout)
		}
		return
	}

	if c.inactivityTimeout > 0 {
		quantum := int64(0)
		if c.reactor != nil {
			quantum = c.reactor.TimerQuantum()
		}
		if now-c.lastActivity+quantum >= c.inactivityTimeout {
			c.hardClose(c, UnbindReasonTimeout)
		}
	}
}

// --- TLS wiring (§4.7) ---

// SetTlsParms configures (or reconfigures, before startTls) the TLS
// bridge's certificate/verification parameters.
func (c *ConnectionDescriptor) SetTlsParms(cfg libcrt.TLSConfig, serverName string, isServer bool) error {
	if c.tls == nil {
		c.tls = newTlsBridge(cfg, serverName, isServer)
		c.tls.onVerify = func() { c.emit(SslVerify, nil, 0) }
		return nil
	}
	return c.tls.setTlsParms(cfg, serverName)
}

// StartTls begins the handshake. setTlsParms must have been called
// first (directly or via SetTlsParms).
func (c *ConnectionDescriptor) StartTls() error {
	if c.tls == nil {
		return ErrorTlsNotConfigured.Error()
	}
	return c.tls.startTls()
}

// AcceptSslPeer is called by user code from within the SSL_VERIFY
// callback to accept or reject the peer certificate chain.
func (c *ConnectionDescriptor) AcceptSslPeer(ok bool) {
	if c.tls != nil {
		c.tls.acceptSslPeer(ok)
	}
}

func (c *ConnectionDescriptor) IsHandshakeCompleted() bool {
	return c.tls != nil && c.tls.isHandshakeCompleted()
}

// --- outbound queue (shared by SendOutboundData and proxy forwarding) ---

// SendOutboundData enqueues data for transmission. It fails on a
// watch-only descriptor (invariant 4) or once closeAfterWriting has
// been scheduled (invariant 2).
func (c *ConnectionDescriptor) SendOutboundData(data []byte) (int, error) {
	if c.watchOnly {
		return 0, ErrorWatchOnly.Error()
	}
	if c.state != stateOpen {
		return 0, ErrorAlreadyClosed.Error()
	}
	if c.tls != nil {
		return c.sendTlsOutboundData(data)
	}
	return c.enqueueOutbound(data)
}

func (c *ConnectionDescriptor) enqueueOutbound(data []byte) (int, error) {
	if c.watchOnly {
		return 0, ErrorWatchOnly.Error()
	}
	if c.state == stateCloseAfterWriting || c.state == stateCloseNow || c.state == stateClosed {
		return 0, ErrorAlreadyClosed.Error()
	}
	if len(data) == 0 {
		return 0, nil
	}

	c.enqueuePage(NewOutboundPage(data))
	c.refreshInterest(c)
	c.checkBackpressure()
	return len(data), nil
}

// --- read path (§4.4) ---

func withGuardNul(data []byte) []byte {
	out := make([]byte, len(data)+1)
	copy(out, data)
	return out[:len(data)]
}

func (c *ConnectionDescriptor) OnReadable() {
	if c.fd == invalidSocket {
		return
	}
	if c.watchOnly {
		if c.notifyReadable {
			c.emit(ConnectionNotifyReadable, nil, 0)
		}
		return
	}

	c.lastActivity = c.reactor.CurrentLoopTime()

	// A 0-byte result is only ever scheduled once here, on whichever
	// iteration produces it — not again after the loop — keeping
	// scheduleClose's idempotence from masking a branch that should
	// only fire once (see the design notes on this point).
	for i := 0; i < maxReadIterations; i++ {
		buf := make([]byte, readBufferSize)
		n, err := rawRead(c.fd, buf[:readBufferSize-1])

		if err != nil {
			if isTransient(err) {
				break
			}
			c.unbindReason = errnoOf(err)
			c.hardClose(c, c.unbindReason)
			return
		}

		if n == 0 {
			c.scheduleClose(false)
			break
		}

		chunk := withGuardNul(buf[:n])
		if paused := c.dispatchInboundData(chunk); paused {
			break
		}
	}
}

// dispatchInboundData implements _dispatchInboundData: TLS first (if
// attached), then proxy-or-callback. It returns true if a downstream
// callback paused this descriptor, telling the read loop to stop.
func (c *ConnectionDescriptor) dispatchInboundData(data []byte) bool {
	if c.tls != nil {
		c.tls.putCiphertext(data)
		c.pumpTlsCiphertextOut()

		for {
			plain := make([]byte, plaintextPullChunk)
			n := c.tls.getPlaintext(plain)

			if n == 0 {
				break
			}
			if n == -1 {
				break // handshake verification pending user decision
			}
			if n == -2 {
				c.unbindReason = UnbindReasonTlsAbort
				c.hardClose(c, UnbindReasonTlsAbort)
				return true
			}

			if !c.sslHandshakeEmitted && c.tls.isHandshakeCompleted() {
				c.sslHandshakeEmitted = true
				c.emit(SslHandshakeCompleted, nil, 0)
			}

			c.genericInboundDispatch(withGuardNul(plain[:n]))
			if c.paused {
				return true
			}
		}

		if !c.sslHandshakeEmitted && c.tls.isHandshakeCompleted() {
			c.sslHandshakeEmitted = true
			c.emit(SslHandshakeCompleted, nil, 0)
		}
		return c.paused
	}

	c.genericInboundDispatch(data)
	return c.paused
}

func (c *ConnectionDescriptor) genericInboundDispatch(data []byte) {
	if c.proxyTarget != 0 {
		c.forwardProxy(data)
		return
	}
	c.emit(ConnectionRead, data, len(data))
}

// --- write path (§4.5) ---

func (c *ConnectionDescriptor) OnWritable() {
	if c.fd == invalidSocket {
		return
	}

	if c.connectPending {
		errno, err := getSocketError(c.fd)
		if err != nil || errno != 0 {
			c.unbindReason = errno
			c.hardClose(c, errno)
			return
		}
		c.connectPending = false
		c.emit(ConnectionCompleted, nil, 0)
		c.refreshInterest(c)
		return
	}

	if c.tls != nil {
		c.dispatchCiphertext()
		return
	}

	if c.watchOnly {
		if c.notifyWritable {
			c.emit(ConnectionNotifyWritable, nil, 0)
			c.refreshInterest(c)
		}
		return
	}

	c.drainOutbound()
}

// drainOutbound performs one write-side tick of the outbound queue:
// gather up to maxWriteSegments pages (or coalesce to a single
// maxWriteCoalesced buffer when scatter-gather is unavailable), issue
// one nonblocking write, and advance/pop/requeue accordingly.
func (c *ConnectionDescriptor) drainOutbound() {
	c.popEmptyPages()
	if len(c.outbound) == 0 {
		return
	}

	segs := c.outbound
	if len(segs) > maxWriteSegments {
		segs = segs[:maxWriteSegments]
	}

	bufs := make([][]byte, 0, len(segs))
	total := 0
	for _, p := range segs {
		b := p.Bytes()
		if !scatterGatherAvailable && total+len(b) > maxWriteCoalesced {
			if total == 0 {
				b = b[:maxWriteCoalesced]
			} else {
				break
			}
		}
		bufs = append(bufs, b)
		total += len(b)
	}

	if total == 0 {
		return
	}

	n, err := rawWritev(c.fd, bufs)
	if err != nil {
		if isTransient(err) {
			return
		}
		c.unbindReason = errnoOf(err)
		c.hardClose(c, c.unbindReason)
		return
	}

	c.advanceOutbound(n)
}

// advanceOutbound marks n bytes written across the head of the queue,
// frees fully-drained pages, and releases backpressure if our queue
// has drained back under the limit.
func (c *ConnectionDescriptor) advanceOutbound(n int) {
	remaining := n
	for remaining > 0 && len(c.outbound) > 0 {
		p := c.outbound[0]
		take := p.Len()
		if take > remaining {
			take = remaining
		}
		p.Advance(take)
		c.outboundSize -= take
		remaining -= take
		if p.Empty() {
			c.outbound = c.outbound[1:]
		}
	}
	c.releaseBackpressure()
	c.refreshInterest(c)
}

// pumpTlsCiphertextOut drains whatever ciphertext the TLS bridge
// produced (handshake flight, or the encrypted form of application
// data) to the raw outbound queue.
func (c *ConnectionDescriptor) pumpTlsCiphertextOut() {
	for c.tls.canGetCiphertext() {
		ct := c.tls.getCiphertext(maxWriteCoalesced)
		if len(ct) == 0 {
			return
		}
		c.enqueuePage(NewOutboundPage(ct))
	}
	if len(c.outbound) > 0 {
		c.refreshInterest(c)
	}
}

// dispatchCiphertext implements the TLS write-side integration: drain
// pending ciphertext to the raw queue, call putPlaintext(nil) to detect
// a fatal bridge state, and repeat until no more ciphertext appears.
func (c *ConnectionDescriptor) dispatchCiphertext() {
	for {
		progressed := false

		if c.tls.canGetCiphertext() {
			c.pumpTlsCiphertextOut()
			progressed = true
		}

		if n := c.tls.putPlaintext(nil); n == -1 {
			c.unbindReason = UnbindReasonTlsAbort
			c.hardClose(c, UnbindReasonTlsAbort)
			return
		} else if n > 0 {
			progressed = true
		}

		if !progressed {
			break
		}
	}

	c.drainOutbound()
}

// sendTlsOutboundData feeds application bytes through the TLS bridge
// in SSLBOX_INPUT_CHUNKSIZE pieces, flushing ciphertext after each.
// Returns the plaintext byte count actually accepted (the open
// question recorded in the design notes: no speculative "1").
func (c *ConnectionDescriptor) sendTlsOutboundData(data []byte) (int, error) {
	if c.watchOnly {
		return 0, ErrorWatchOnly.Error()
	}

	accepted := 0
	for len(data) > 0 {
		chunk := data
		if len(chunk) > sslboxInputChunkSize {
			chunk = chunk[:sslboxInputChunkSize]
		}

		n := c.tls.putPlaintext(chunk)
		if n == -1 {
			return accepted, ErrorTlsHandshake.Error()
		}
		c.pumpTlsCiphertextOut()

		if n == 0 {
			break
		}
		accepted += n
		data = data[n:]
	}
	return accepted, nil
}
