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

// Package descriptor owns the lifecycle and I/O state machine of every
// kernel descriptor a single-threaded reactor registers: listening
// sockets, connected stream sockets (optionally TLS-wrapped),
// connectionless datagram sockets, a self-pipe loopbreak, and an
// optional filesystem-watch source. The reactor itself — the readiness
// poller, timer wheel, and name resolution — is an external
// collaborator consumed through the Reactor interface, not implemented
// here.
package descriptor

import (
	"github.com/nabbar/reactor/binding"

	liblog "github.com/nabbar/golib/logger"
)

// closeState is the common close state machine every descriptor kind
// shares: OPEN -> CLOSE_AFTER_WRITING -> CLOSE_NOW -> CLOSED.
type closeState uint8

const (
	stateOpen closeState = iota
	stateCloseAfterWriting
	stateCloseNow
	stateClosed
)

const invalidSocket = -1

// base holds the state and behavior common to every descriptor kind.
// It is embedded, never used standalone; concrete kinds supply their
// own SelectForRead/SelectForWrite/OnReadable/OnWritable/OnError/
// Heartbeat on top of it.
type base struct {
	handle   binding.Handle
	kind     binding.Kind
	reactor  Reactor
	registry *binding.Registry

	fd       int
	attached bool

	watchOnly      bool
	notifyReadable bool
	notifyWritable bool

	paused bool

	state closeState

	createdAt    int64
	lastActivity int64

	inactivityTimeout     int64 // microseconds, 0 disables
	pendingConnectTimeout int64 // microseconds, 0 disables
	connectPending        bool

	callbackUnbind  bool
	unbindDelivered bool
	unbindReason    int

	cb  Callback
	log liblog.FuncLog

	outbound           []*OutboundPage
	outboundSize       int
	maxOutboundBufSize int

	proxyTarget  binding.Handle
	proxiedFrom  binding.Handle
	bytesToProxy int64
	proxiedBytes int64
}

func (b *base) init(reactor Reactor, registry *binding.Registry, kind binding.Kind, fd int, cb Callback, log liblog.FuncLog) {
	b.reactor = reactor
	b.registry = registry
	b.kind = kind
	b.fd = fd
	b.callbackUnbind = true
	b.cb = cb
	b.log = log
	b.createdAt = reactor.CurrentLoopTime()
	b.lastActivity = b.createdAt
}

// Binding returns the handle user code uses to identify this
// descriptor across the callback boundary.
func (b *base) Binding() binding.Handle { return b.handle }

// Kind reports which concrete descriptor family this is.
func (b *base) Kind() binding.Kind { return b.kind }

func (b *base) logger() liblog.Logger {
	if b.log == nil {
		return nil
	}
	return b.log()
}

func (b *base) emit(kind EventKind, data []byte, code int) {
	if b.cb == nil {
		return
	}
	b.cb(Event{Binding: b.handle, Kind: kind, Data: data, Code: code})
}

// emitUnbind delivers the single terminal UNBOUND event, unless
// callbackUnbind was disabled or it was already delivered once.
func (b *base) emitUnbind(reason int) {
	if !b.callbackUnbind || b.unbindDelivered {
		return
	}
	b.unbindDelivered = true
	b.unbindReason = reason
	b.emit(ConnectionUnbound, nil, reason)
}

// scheduleClose implements §4.1's transition table. afterWriting=true
// from OPEN parks the descriptor at CLOSE_AFTER_WRITING: no new writes
// are accepted but the existing queue still drains. Any call with
// afterWriting=false upgrades to CLOSE_NOW from any non-CLOSED state.
// Each call that actually changes state increments the reactor's
// pending-closure counter.
func (b *base) scheduleClose(afterWriting bool) {
	if b.state == stateClosed {
		return
	}

	if !afterWriting {
		if b.state != stateCloseNow {
			b.state = stateCloseNow
			if b.reactor != nil {
				b.reactor.IncCloseScheduled()
			}
		}
		return
	}

	if b.state == stateOpen {
		b.state = stateCloseAfterWriting
		if b.reactor != nil {
			b.reactor.IncCloseScheduled()
		}
	}
}

// shouldDelete is handle-invalid OR closeNow OR (closeAfterWriting AND
// outbound queue empty). It is monotonic: once true, it stays true,
// because fd is only ever set to invalidSocket on the way to CLOSED
// and state never regresses.
func (b *base) shouldDelete() bool {
	if b.fd == invalidSocket {
		return true
	}
	if b.state == stateCloseNow || b.state == stateClosed {
		return true
	}
	if b.state == stateCloseAfterWriting && b.outboundSize == 0 {
		return true
	}
	return false
}

// hardClose forcibly moves to CLOSED: deregisters from the reactor,
// abandons the outbound queue, closes the handle (unless attached or a
// standard stream handle per invariant 8), and delivers the terminal
// UNBOUND event with the given reason.
func (b *base) hardClose(self Descriptor, reason int) {
	wasClosed := b.state == stateClosed

	if b.state != stateClosed {
		b.state = stateClosed
	}

	if b.reactor != nil && !wasClosed {
		b.reactor.ClearHeartbeat(self)
		_ = b.reactor.Deregister(self)
	}

	b.outbound = nil
	b.outboundSize = 0

	if !wasClosed {
		b.tearDownProxyLinks()
	}

	if b.fd != invalidSocket && !b.attached && !isStdHandle(b.fd) {
		closeFd(b.fd)
	}
	b.fd = invalidSocket

	if b.registry != nil && b.handle != 0 {
		b.registry.Unregister(b.handle)
	}

	if !wasClosed {
		b.emitUnbind(reason)
	}
}

// isStdHandle reports whether fd is one of stdin/stdout/stderr, which
// invariant 8 says the core never closes.
func isStdHandle(fd int) bool {
	return fd == 0 || fd == 1 || fd == 2
}

// tearDownProxyLinks is implemented in proxy.go.

// outboundDataSize equals Σ (len(page) - offset(page)) over all queued
// pages, maintained incrementally by enqueue/advance rather than
// recomputed, but always kept in sync with that sum (invariant 6).
func (b *base) outboundDataSize() int { return b.outboundSize }

func (b *base) enqueuePage(p *OutboundPage) {
	b.outbound = append(b.outbound, p)
	b.outboundSize += p.Len()
}

// popEmptyPages removes fully-drained pages from the head of the
// queue, keeping outboundSize consistent.
func (b *base) popEmptyPages() {
	i := 0
	for i < len(b.outbound) && b.outbound[i].Empty() {
		i++
	}
	if i > 0 {
		b.outbound = b.outbound[i:]
	}
}

// pause flips paused on; resume flips it off. Both report whether the
// state actually changed, and both fail on watch-only descriptors per
// §4.6.
func (b *base) pause() (bool, error) {
	if b.watchOnly {
		return false, ErrorWatchOnly.Error()
	}
	if b.paused {
		return false, nil
	}
	b.paused = true
	return true, nil
}

func (b *base) resume() (bool, error) {
	if b.watchOnly {
		return false, ErrorWatchOnly.Error()
	}
	if !b.paused {
		return false, nil
	}
	b.paused = false
	return true, nil
}

func (b *base) isPaused() bool { return b.paused }

// refreshInterest asks the reactor to re-evaluate this descriptor's
// poller membership after a readiness-affecting state change.
func (b *base) refreshInterest(self Descriptor) {
	if b.reactor != nil {
		_ = b.reactor.Modify(self)
	}
}
