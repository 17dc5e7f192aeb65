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

import "github.com/nabbar/reactor/binding"

// ProxyLink is not a separate object the way OutboundPage is — it is
// the relationship recorded on base.proxyTarget/proxiedFrom/
// bytesToProxy/proxiedBytes/maxOutboundBufSize (§3) between two
// ConnectionDescriptors. This file groups the behavior that
// relationship drives: starting it, forwarding bytes across it with
// length-bounded splitting, backpressure, and teardown.

// StartProxy binds this descriptor's inbound stream to target's
// sendOutboundData. If length > 0, proxying stops after exactly that
// many bytes; bufsize caps target's outbound queue for backpressure.
// A target may have at most one proxiedFrom source at a time.
func (c *ConnectionDescriptor) StartProxy(target binding.Handle, bufsize int, length int64) error {
	if c.registry == nil {
		return ErrorProxyTargetMissing.Error()
	}
	tgt, ok := binding.GetAs[*ConnectionDescriptor](c.registry, target)
	if !ok {
		return ErrorProxyTargetMissing.Error()
	}
	if tgt.proxiedFrom != 0 {
		return ErrorProxyTargetBusy.Error()
	}

	tgt.proxiedFrom = c.handle
	tgt.maxOutboundBufSize = bufsize
	c.proxyTarget = target
	c.bytesToProxy = length
	c.proxiedBytes = 0
	return nil
}

// forwardProxy routes data to the active proxy target, splitting at
// the length boundary if one was set: the bytes up to the boundary are
// forwarded and PROXY_COMPLETED is emitted, then any trailing bytes in
// the same chunk are replayed through the normal CONNECTION_READ path
// instead of being silently dropped.
func (c *ConnectionDescriptor) forwardProxy(data []byte) {
	if c.registry == nil {
		c.scheduleClose(false)
		return
	}
	tgt, ok := binding.GetAs[*ConnectionDescriptor](c.registry, c.proxyTarget)
	if !ok {
		c.proxyTarget = 0
		c.scheduleClose(false)
		return
	}

	forward := data
	var remainder []byte

	if c.bytesToProxy > 0 {
		remain := c.bytesToProxy - c.proxiedBytes
		if int64(len(data)) >= remain {
			forward = data[:remain]
			remainder = data[remain:]
		}
	}

	if len(forward) > 0 {
		_, _ = tgt.enqueueOutbound(forward)
		c.proxiedBytes += int64(len(forward))
	}

	if c.bytesToProxy > 0 && c.proxiedBytes >= c.bytesToProxy {
		tgt.proxiedFrom = 0
		c.proxyTarget = 0
		c.emit(ProxyCompleted, nil, len(forward))

		if len(remainder) > 0 {
			c.emit(ConnectionRead, withGuardNul(remainder), len(remainder))
		}
	}
}

// checkBackpressure pauses the descriptor feeding us once our outbound
// queue grows past maxOutboundBufSize (§4.8). A zero limit means
// unbounded.
func (c *ConnectionDescriptor) checkBackpressure() {
	if c.maxOutboundBufSize <= 0 || c.proxiedFrom == 0 || c.registry == nil {
		return
	}
	if c.outboundSize <= c.maxOutboundBufSize {
		return
	}
	if src, ok := binding.GetAs[*ConnectionDescriptor](c.registry, c.proxiedFrom); ok {
		_, _ = src.Pause()
	}
}

// releaseBackpressure resumes the proxied-from source once our queue
// has drained back under the limit.
func (c *ConnectionDescriptor) releaseBackpressure() {
	if c.proxiedFrom == 0 || c.registry == nil {
		return
	}
	if c.maxOutboundBufSize > 0 && c.outboundSize > c.maxOutboundBufSize {
		return
	}
	if src, ok := binding.GetAs[*ConnectionDescriptor](c.registry, c.proxiedFrom); ok {
		_, _ = src.Resume()
	}
}

// tearDownProxyLinks runs at hard-close time on both sides of a proxy
// relationship. If I am a target being destroyed, my proxiedFrom
// source is told PROXY_TARGET_UNBOUND and its link is cleared (§4.8).
// If I am a source being destroyed, my target's proxiedFrom slot is
// cleared silently so the link doesn't wedge the target's backpressure
// bookkeeping (§7's destructor-idempotence rule).
func (b *base) tearDownProxyLinks() {
	if b.registry == nil {
		return
	}

	if b.proxiedFrom != 0 {
		if src, ok := binding.GetAs[*ConnectionDescriptor](b.registry, b.proxiedFrom); ok {
			src.proxyTarget = 0
			src.emit(ProxyTargetUnbound, nil, 0)
		}
		b.proxiedFrom = 0
	}

	if b.proxyTarget != 0 {
		if tgt, ok := binding.GetAs[*ConnectionDescriptor](b.registry, b.proxyTarget); ok {
			tgt.proxiedFrom = 0
		}
		b.proxyTarget = 0
	}
}
