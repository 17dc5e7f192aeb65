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

	"github.com/nabbar/reactor/binding"
)

// Descriptor is the capability set every concrete descriptor kind
// implements. The reactor drives a descriptor purely through this
// interface; it never knows the concrete type.
type Descriptor interface {
	// Binding returns the opaque handle user code uses to identify this
	// descriptor across the callback boundary.
	Binding() binding.Handle

	// Kind reports which concrete descriptor family this is.
	Kind() binding.Kind

	// OnReadable is invoked by the reactor when the poller reports the
	// underlying handle readable.
	OnReadable()

	// OnWritable is invoked by the reactor when the poller reports the
	// underlying handle writable.
	OnWritable()

	// OnError is invoked when the poller collapses HUP/ERR conditions
	// that don't cleanly map to a readable/writable event.
	OnError()

	// Heartbeat is invoked by the reactor's coarse timer wheel. now is
	// the reactor's cached loop time, in microseconds.
	Heartbeat(now int64)

	// SelectForRead and SelectForWrite are pure predicates over visible
	// state (§4.3); the reactor re-queries them whenever state changes.
	SelectForRead() bool
	SelectForWrite() bool

	// ShouldDelete reports whether the reactor may destroy this
	// descriptor at its next sweep.
	ShouldDelete() bool

	// Close forces the hard-close path regardless of pending output.
	Close()
}

// Reactor is the external collaborator this package consumes. It is
// never implemented here — poller backends, timer wheels and name
// resolution live outside this core.
type Reactor interface {
	// Add registers a descriptor with the poller. Modify re-evaluates
	// its interest set after a readiness predicate changed. Deregister
	// removes it from the poller without closing its handle.
	Add(d Descriptor) error
	Modify(d Descriptor) error
	Deregister(d Descriptor) error

	// QueueHeartbeat arms the timer wheel to call d.Heartbeat at or
	// after the given loop-time deadline (microseconds). ClearHeartbeat
	// cancels a previously queued heartbeat.
	QueueHeartbeat(d Descriptor, deadline int64)
	ClearHeartbeat(d Descriptor)

	// CurrentLoopTime returns the reactor's cached coarse clock, in
	// microseconds. RealTime forces a fresh read. TimerQuantum returns
	// the heartbeat tick granularity, used as timeout slack.
	CurrentLoopTime() int64
	RealTime() int64
	TimerQuantum() int64

	// Name2Address resolves host:port for the given socket type
	// (syscall.SOCK_STREAM / syscall.SOCK_DGRAM) into a net.Addr.
	Name2Address(host string, port int, sockType int) (net.Addr, error)

	// SimultaneousAcceptCount bounds how many connections an acceptor
	// pulls off the backlog per readable tick.
	SimultaneousAcceptCount() int

	// IncCloseScheduled/DecCloseScheduled maintain the reactor-visible
	// counter of descriptors awaiting destruction, used to bound
	// per-tick sweep work.
	IncCloseScheduled()
	DecCloseScheduled()

	// ReadLoopBreaker and ReadInotifyEvents are the reentrancy hooks
	// LoopbreakDescriptor and WatchDescriptor delegate their readable
	// event to.
	ReadLoopBreaker() error
	ReadInotifyEvents() error
}
