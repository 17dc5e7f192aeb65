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

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/reactor/binding"
)

const (
	maxDatagramIterations = 10
	datagramBufferSize    = 16 * 1024
)

// DatagramDescriptor is the message-oriented UDP send/receive side of
// the core (§4.10). Unlike ConnectionDescriptor, write-readiness is
// driven by outbound page count, not byte count, so a zero-length
// packet still selects for write.
type DatagramDescriptor struct {
	base

	returnAddress net.Addr
}

// NewDatagram wraps an already-bound UDP fd. SO_BROADCAST is enabled
// at construction so sends to broadcast addresses don't fail EACCES.
func NewDatagram(reactor Reactor, registry *binding.Registry, fd int, cb Callback, log liblog.FuncLog) (*DatagramDescriptor, error) {
	if reactor == nil {
		return nil, ErrorMissingReactor.Error()
	}
	if fd == invalidSocket {
		return nil, ErrorInvalidSocket.Error()
	}

	d := &DatagramDescriptor{}
	d.init(reactor, registry, binding.KindDatagram, fd, cb, log)

	if err := setNonblockingCloexec(fd); err != nil {
		return nil, ErrorSocketSetup.Error(err)
	}
	if err := setBroadcast(fd); err != nil {
		return nil, ErrorSocketSetup.Error(err)
	}

	if registry != nil {
		d.handle = registry.Register(d)
	}
	return d, nil
}

func (d *DatagramDescriptor) BindKind() binding.Kind { return binding.KindDatagram }

// SelectForRead is always true. SelectForWrite is driven by pending
// page count rather than byte count (§4.3, §4.10), so a queued
// zero-length packet still selects writable.
func (d *DatagramDescriptor) SelectForRead() bool  { return !d.paused }
func (d *DatagramDescriptor) SelectForWrite() bool { return !d.paused && len(d.outbound) > 0 }

// ShouldDelete uses the byte count (base.shouldDelete), not the page
// count: with closeAfterWriting set, a queued zero-length packet still
// selects writable while ShouldDelete already reports true.
func (d *DatagramDescriptor) ShouldDelete() bool { return d.shouldDelete() }

// OutboundDataSize reports the sum of unwritten bytes across every
// queued outbound page.
func (d *DatagramDescriptor) OutboundDataSize() int { return d.outboundDataSize() }

// OutboundPageCount reports the number of queued outbound pages,
// the quantity SelectForWrite is actually driven by for datagrams.
func (d *DatagramDescriptor) OutboundPageCount() int { return len(d.outbound) }

func (d *DatagramDescriptor) Close() { d.hardClose(d, UnbindReasonLocalStop) }

func (d *DatagramDescriptor) OnError() { d.scheduleClose(false) }

// Heartbeat applies the same inactivity rule as ConnectionDescriptor,
// without the connect-pending branch (§5).
func (d *DatagramDescriptor) Heartbeat(now int64) {
	if d.inactivityTimeout <= 0 {
		return
	}
	quantum := int64(0)
	if d.reactor != nil {
		quantum = d.reactor.TimerQuantum()
	}
	if now-d.lastActivity+quantum >= d.inactivityTimeout {
		d.hardClose(d, UnbindReasonTimeout)
	}
}

// ReturnAddress is the most recently seen sender, the implicit
// destination for SendOutboundData when no address is given.
func (d *DatagramDescriptor) ReturnAddress() net.Addr { return d.returnAddress }

// OnReadable pulls up to maxDatagramIterations datagrams per tick.
// Zero-length datagrams are legal and dispatched like any other.
func (d *DatagramDescriptor) OnReadable() {
	if d.fd == invalidSocket {
		return
	}

	d.lastActivity = d.reactor.CurrentLoopTime()

	for i := 0; i < maxDatagramIterations; i++ {
		buf := make([]byte, datagramBufferSize)
		n, from, err := recvfromDatagram(d.fd, buf[:datagramBufferSize-1])

		if err != nil {
			if isTransient(err) {
				break
			}
			d.unbindReason = errnoOf(err)
			d.hardClose(d, d.unbindReason)
			return
		}

		if from != nil {
			d.returnAddress = from
		}

		chunk := withGuardNul(buf[:n])
		d.emit(ConnectionRead, chunk, n)
	}
}

// SendOutboundData enqueues data destined for the last-seen peer
// (ReturnAddress). It fails if no peer has ever been seen.
func (d *DatagramDescriptor) SendOutboundData(data []byte) (int, error) {
	if d.returnAddress == nil {
		return 0, ErrorDatagramAddressResolve.Error()
	}
	return d.SendOutboundDatagram(data, d.returnAddress)
}

// SendOutboundDatagram enqueues data destined for an explicit,
// already-resolved address (typically a *net.UDPAddr); it performs no
// name resolution itself. SendOutboundDatagramName below resolves
// host:port via the reactor first.
func (d *DatagramDescriptor) SendOutboundDatagram(data []byte, dest net.Addr) (int, error) {
	if d.state == stateCloseAfterWriting || d.state == stateCloseNow || d.state == stateClosed {
		return 0, ErrorAlreadyClosed.Error()
	}
	d.enqueuePage(NewOutboundDatagram(data, dest))
	d.refreshInterest(d)
	return len(data), nil
}

// SendOutboundDatagramName resolves host:port via the reactor before
// enqueueing, returning -1 (by convention, an error) on resolution
// failure.
func (d *DatagramDescriptor) SendOutboundDatagramName(data []byte, host string, port int) (int, error) {
	if d.reactor == nil {
		return 0, ErrorMissingReactor.Error()
	}
	addr, err := d.reactor.Name2Address(host, port, sockDgram)
	if err != nil {
		return -1, ErrorDatagramAddressResolve.Error(err)
	}
	return d.SendOutboundDatagram(data, addr)
}

// OnWritable sends up to maxDatagramIterations queued packets.
// Transient errors leave the remainder queued for the next tick;
// persistent errors hard-close.
func (d *DatagramDescriptor) OnWritable() {
	if d.fd == invalidSocket {
		return
	}

	for i := 0; i < maxDatagramIterations && len(d.outbound) > 0; i++ {
		p := d.outbound[0]

		err := sendtoDatagram(d.fd, p.Bytes(), p.Destination())
		if err != nil {
			if isTransient(err) {
				break
			}
			d.unbindReason = errnoOf(err)
			d.hardClose(d, d.unbindReason)
			return
		}

		d.outboundSize -= p.Len()
		d.outbound = d.outbound[1:]
	}

	d.refreshInterest(d)
}

// sockDgram mirrors syscall.SOCK_DGRAM without importing syscall into
// every caller of Name2Address; kept here since only the datagram path
// needs it.
const sockDgram = 2
