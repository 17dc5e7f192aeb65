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
	"os"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/reactor/binding"
)

// LoopbreakDescriptor is the self-pipe used to wake a blocked poll
// from another goroutine (§4.11). It never emits CONNECTION_UNBOUND:
// it is infrastructure, not a user-visible connection.
type LoopbreakDescriptor struct {
	base

	reader *os.File
	writer *os.File
}

// NewLoopbreak creates the pipe and wraps its read end. The write end
// is returned so the reactor can expose a Wake() that writes a single
// byte to it from any goroutine.
func NewLoopbreak(reactor Reactor, registry *binding.Registry, log liblog.FuncLog) (*LoopbreakDescriptor, *os.File, error) {
	if reactor == nil {
		return nil, nil, ErrorMissingReactor.Error()
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, ErrorSocketSetup.Error(err)
	}

	l := &LoopbreakDescriptor{reader: r, writer: w}
	l.init(reactor, registry, binding.KindLoopbreak, int(r.Fd()), nil, log)
	l.callbackUnbind = false

	if registry != nil {
		l.handle = registry.Register(l)
	}
	return l, w, nil
}

func (l *LoopbreakDescriptor) BindKind() binding.Kind { return binding.KindLoopbreak }

func (l *LoopbreakDescriptor) SelectForRead() bool  { return true }
func (l *LoopbreakDescriptor) SelectForWrite() bool { return false }

func (l *LoopbreakDescriptor) ShouldDelete() bool { return l.shouldDelete() }

func (l *LoopbreakDescriptor) Heartbeat(_ int64) {}

func (l *LoopbreakDescriptor) OnWritable() {}

func (l *LoopbreakDescriptor) OnError() { l.scheduleClose(false) }

// Close tears down both ends of the pipe.
func (l *LoopbreakDescriptor) Close() {
	l.hardClose(l, UnbindReasonLocalStop)
	_ = l.writer.Close()
}

// OnReadable drains whatever tokens were written to wake the poll,
// then hands off to the reactor's own dispatch of queued work.
func (l *LoopbreakDescriptor) OnReadable() {
	buf := make([]byte, 512)
	for {
		n, err := l.reader.Read(buf)
		if n == 0 || err != nil {
			break
		}
		if n < len(buf) {
			break
		}
	}
	_ = l.reactor.ReadLoopBreaker()
}
