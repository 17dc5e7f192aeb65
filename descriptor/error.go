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

import "github.com/nabbar/golib/errors"

const (
	ErrorParamsEmpty errors.CodeError = iota + errors.MinAvailable
	ErrorInvalidSocket
	ErrorMissingReactor
	ErrorSocketSetup
	ErrorWatchOnly
	ErrorAlreadyClosed
	ErrorNotWatchOnly
	ErrorTlsAlreadyStarted
	ErrorTlsNotConfigured
	ErrorTlsHandshake
	ErrorProxyTargetMissing
	ErrorProxyTargetBusy
	ErrorProxyTargetInvalid
	ErrorAcceptorNotFound
	ErrorDatagramAddressResolve
	ErrorKeepAliveSetup
)

func init() {
	errors.RegisterIdFctMessage(ErrorParamsEmpty, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorParamsEmpty:
		return "given parameters is empty"
	case ErrorInvalidSocket:
		return "socket handle is invalid"
	case ErrorMissingReactor:
		return "no reactor given to the descriptor"
	case ErrorSocketSetup:
		return "cannot configure socket options"
	case ErrorWatchOnly:
		return "operation not permitted on a watch-only descriptor"
	case ErrorAlreadyClosed:
		return "descriptor is already closed"
	case ErrorNotWatchOnly:
		return "operation only permitted on a watch-only descriptor"
	case ErrorTlsAlreadyStarted:
		return "tls parameters cannot change once the bridge is started"
	case ErrorTlsNotConfigured:
		return "tls bridge has no configured parameters"
	case ErrorTlsHandshake:
		return "tls handshake failed"
	case ErrorProxyTargetMissing:
		return "proxy target binding does not resolve to a connection descriptor"
	case ErrorProxyTargetBusy:
		return "proxy target already has a source bound"
	case ErrorProxyTargetInvalid:
		return "proxy target is not accepting new bytes"
	case ErrorAcceptorNotFound:
		return "acceptor binding does not resolve to an acceptor descriptor"
	case ErrorDatagramAddressResolve:
		return "cannot resolve datagram destination address"
	case ErrorKeepAliveSetup:
		return "cannot configure keepalive socket options"
	}

	return ""
}
