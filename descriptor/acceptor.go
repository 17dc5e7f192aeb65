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
	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/reactor/binding"
)

// AcceptorDescriptor runs a nonblocking accept loop and produces new
// ConnectionDescriptors (§4.9).
type AcceptorDescriptor struct {
	base

	onAccepted          func(c *ConnectionDescriptor)
	acceptLimitOverride int
}

// NewAcceptor wraps an already-listening, already-bound fd. onAccepted
// is invoked once per accepted connection after it has been
// constructed and registered in the binding registry, before it is
// added to the reactor and before CONNECTION_ACCEPTED is emitted,
// giving the caller a chance to wire TLS, proxying, or per-connection
// logging.
func NewAcceptor(reactor Reactor, registry *binding.Registry, fd int, cb Callback, log liblog.FuncLog, onAccepted func(c *ConnectionDescriptor)) (*AcceptorDescriptor, error) {
	if reactor == nil {
		return nil, ErrorMissingReactor.Error()
	}
	if fd == invalidSocket {
		return nil, ErrorInvalidSocket.Error()
	}

	a := &AcceptorDescriptor{onAccepted: onAccepted}
	a.init(reactor, registry, binding.KindAcceptor, fd, cb, log)

	if err := setNonblockingCloexec(fd); err != nil {
		return nil, ErrorSocketSetup.Error(err)
	}
	if err := setReuseAddr(fd); err != nil {
		return nil, ErrorSocketSetup.Error(err)
	}

	if registry != nil {
		a.handle = registry.Register(a)
	}
	return a, nil
}

func (a *AcceptorDescriptor) BindKind() binding.Kind { return binding.KindAcceptor }

// SelectForRead is always true; SelectForWrite is always false (§4.3).
func (a *AcceptorDescriptor) SelectForRead() bool  { return true }
func (a *AcceptorDescriptor) SelectForWrite() bool { return false }

func (a *AcceptorDescriptor) ShouldDelete() bool { return a.shouldDelete() }

func (a *AcceptorDescriptor) Close() { a.hardClose(a, UnbindReasonLocalStop) }

func (a *AcceptorDescriptor) Heartbeat(_ int64) {} // no-op per §5

// OnWritable on an acceptor is a programming error per §4.9; it is a
// no-op rather than a panic, since the reactor — not user code — is
// what would misroute an event here.
func (a *AcceptorDescriptor) OnWritable() {}

func (a *AcceptorDescriptor) OnError() {
	a.scheduleClose(false)
}

// OnReadable runs the accept loop, bounded by the reactor-configured
// simultaneous-accept count, emitting CONNECTION_ACCEPTED for each new
// connection.
func (a *AcceptorDescriptor) OnReadable() {
	if a.fd == invalidSocket {
		return
	}

	limit := 1
	if a.reactor != nil {
		if n := a.reactor.SimultaneousAcceptCount(); n > 0 {
			limit = n
		}
	}
	if a.acceptLimitOverride > 0 {
		limit = a.acceptLimitOverride
	}

	for i := 0; i < limit; i++ {
		nfd, err := acceptNonblockCloexec(a.fd)
		if err != nil {
			if isTransient(err) {
				break
			}
			break
		}

		if err = setNonblockingCloexec(nfd); err != nil {
			closeFd(nfd)
			continue
		}
		if err = setTcpNoDelay(nfd); err != nil {
			closeFd(nfd)
			continue
		}

		conn, err := NewConnectionFromAccept(a.reactor, a.registry, nfd, a.cb, a.log)
		if err != nil {
			closeFd(nfd)
			continue
		}

		if a.onAccepted != nil {
			a.onAccepted(conn)
		}

		_ = a.reactor.Add(conn)
		conn.emit(ConnectionAccepted, nil, 0)
	}
}
