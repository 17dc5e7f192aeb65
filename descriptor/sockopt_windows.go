//go:build windows

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

import "golang.org/x/sys/windows"

const tcpKeepIdleOpt = 0

func setNonblockingCloexec(fd int) error {
	h := windows.Handle(fd)
	return windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, 0)
}

func setTcpNoDelay(fd int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_TCP, windows.TCP_NODELAY, 1)
}

func setReuseAddr(fd int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}

func setBroadcast(fd int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}

func getSocketError(fd int) (int, error) {
	return windows.GetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_ERROR)
}

func closeFd(fd int) {
	_ = windows.Closesocket(windows.Handle(fd))
}

// setKeepalive turns on SO_KEEPALIVE. Windows exposes idle/interval
// tuning only through the legacy WSAIoctl(SIO_KEEPALIVE_VALS) control
// path rather than setsockopt, which this port does not attempt;
// idle/intvl/cnt beyond "on" are accepted but ignored.
func setKeepalive(fd int, idle, intvl, cnt int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_KEEPALIVE, 1)
}

func disableKeepaliveOpt(fd int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_KEEPALIVE, 0)
}

func acceptNonblockCloexec(fd int) (int, error) {
	nfd, _, err := windows.Accept(windows.Handle(fd))
	if err != nil {
		return -1, err
	}
	if err = setNonblockingCloexec(int(nfd)); err != nil {
		_ = windows.Closesocket(nfd)
		return -1, err
	}
	return int(nfd), nil
}
