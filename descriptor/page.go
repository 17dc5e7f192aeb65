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

	"github.com/fxamacker/cbor/v2"
)

// OutboundPage is one queued unit of pending write data. A stream
// connection's write queue is a slice of pages drained front-to-back;
// a datagram descriptor's write-readiness is driven by how many pages
// remain, not by their combined byte length.
//
// The buffer is owned by the page once constructed: callers must not
// mutate buf after NewOutboundPage returns.
type OutboundPage struct {
	buf  []byte
	off  int
	dest net.Addr
}

// NewOutboundPage copies data into a new page starting at offset 0.
func NewOutboundPage(data []byte) *OutboundPage {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &OutboundPage{buf: buf}
}

// NewOutboundDatagram builds a page carrying a destination address, for
// use on a DatagramDescriptor's write queue.
func NewOutboundDatagram(data []byte, dest net.Addr) *OutboundPage {
	p := NewOutboundPage(data)
	p.dest = dest
	return p
}

// Len returns the number of unwritten bytes remaining in the page.
func (p *OutboundPage) Len() int {
	if p == nil {
		return 0
	}
	return len(p.buf) - p.off
}

// Bytes returns the unwritten remainder of the page's buffer.
func (p *OutboundPage) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.buf[p.off:]
}

// Advance marks n bytes as written, moving the offset forward. It never
// advances past the end of the buffer.
func (p *OutboundPage) Advance(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.off += n
	if p.off > len(p.buf) {
		p.off = len(p.buf)
	}
}

// Empty reports whether every byte in the page has been written.
func (p *OutboundPage) Empty() bool {
	return p == nil || p.off >= len(p.buf)
}

// Destination returns the page's datagram destination, or nil for a
// stream page that carries no address of its own.
func (p *OutboundPage) Destination() net.Addr {
	if p == nil {
		return nil
	}
	return p.dest
}

// envelope is the CBOR-encoded form of a page kept across a process
// restart — used only by a caller that wants the destination address
// to survive a proxy checkpoint being written to durable storage.
type envelope struct {
	Data []byte `cbor:"1,keyasint"`
	Dest string `cbor:"2,keyasint,omitempty"`
}

// MarshalCheckpoint serializes the page's remaining bytes and, if
// present, its destination's network and string form, as CBOR. It is
// unrelated to the hot read/write path; it exists for callers that
// persist pending outbound pages across a restart.
func (p *OutboundPage) MarshalCheckpoint() ([]byte, error) {
	e := envelope{Data: p.Bytes()}
	if p.dest != nil {
		e.Dest = p.dest.Network() + "!" + p.dest.String()
	}
	return cbor.Marshal(e)
}

// UnmarshalCheckpoint restores a page from CBOR produced by
// MarshalCheckpoint. The destination is restored as a net.Addr backed
// by a plain string pair, not re-resolved against any live socket.
func UnmarshalCheckpoint(data []byte) (*OutboundPage, error) {
	var e envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	p := NewOutboundPage(e.Data)
	if e.Dest != "" {
		p.dest = parseCheckpointAddr(e.Dest)
	}
	return p, nil
}

type checkpointAddr struct {
	network string
	addr    string
}

func (a *checkpointAddr) Network() string { return a.network }
func (a *checkpointAddr) String() string  { return a.addr }

func parseCheckpointAddr(s string) net.Addr {
	for i := 0; i < len(s); i++ {
		if s[i] == '!' {
			return &checkpointAddr{network: s[:i], addr: s[i+1:]}
		}
	}
	return &checkpointAddr{addr: s}
}
