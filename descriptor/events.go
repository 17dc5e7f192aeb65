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

// EventKind enumerates every event kind the core emits through the
// callback channel.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	ConnectionRead
	ConnectionCompleted
	ConnectionAccepted
	ConnectionUnbound
	ConnectionNotifyReadable
	ConnectionNotifyWritable
	ProxyTargetUnbound
	ProxyCompleted
	SslHandshakeCompleted
	SslVerify
)

func (k EventKind) String() string {
	switch k {
	case ConnectionRead:
		return "CONNECTION_READ"
	case ConnectionCompleted:
		return "CONNECTION_COMPLETED"
	case ConnectionAccepted:
		return "CONNECTION_ACCEPTED"
	case ConnectionUnbound:
		return "CONNECTION_UNBOUND"
	case ConnectionNotifyReadable:
		return "CONNECTION_NOTIFY_READABLE"
	case ConnectionNotifyWritable:
		return "CONNECTION_NOTIFY_WRITABLE"
	case ProxyTargetUnbound:
		return "PROXY_TARGET_UNBOUND"
	case ProxyCompleted:
		return "PROXY_COMPLETED"
	case SslHandshakeCompleted:
		return "SSL_HANDSHAKE_COMPLETED"
	case SslVerify:
		return "SSL_VERIFY"
	default:
		return "UNKNOWN"
	}
}

// Unbind reason sentinels. Any positive value is an OS errno.
const (
	UnbindReasonNone      = 0
	UnbindReasonTimeout   = -1
	UnbindReasonTlsAbort  = -2
	UnbindReasonLocalStop = -3
)

// Event is one notification carried through the callback channel.
// Data is populated for CONNECTION_READ and SSL_VERIFY-adjacent
// payload events; Code carries a byte count, reason code, or other
// event-specific integer.
type Event struct {
	Binding binding.Handle
	Kind    EventKind
	Data    []byte
	Code    int
}

// Callback is the single function-pointer channel a descriptor emits
// events through, registered once by the reactor at construction.
type Callback func(ev Event)
