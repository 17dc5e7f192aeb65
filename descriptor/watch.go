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
	"github.com/fsnotify/fsnotify"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/reactor/binding"
)

// WatchDescriptor exposes an fsnotify inotify (or platform equivalent)
// file descriptor to the reactor's poll set (§4.11). Like
// LoopbreakDescriptor it is infrastructure: it never emits
// CONNECTION_UNBOUND, and events are drained by the reactor itself via
// ReadInotifyEvents, not by this type.
type WatchDescriptor struct {
	base

	watcher *fsnotify.Watcher
}

// NewWatch wraps an fsnotify watcher. Paths should already have been
// added via watcher.Add before this descriptor is registered with the
// reactor. fsnotify doesn't expose a raw poll()-able descriptor on
// every backend (kqueue platforms in particular), so this descriptor
// carries no fd of its own: the reactor is expected to select on
// watcher.Events/watcher.Errors directly and call OnReadable when
// either is ready.
func NewWatch(reactor Reactor, registry *binding.Registry, watcher *fsnotify.Watcher, log liblog.FuncLog) (*WatchDescriptor, error) {
	if reactor == nil {
		return nil, ErrorMissingReactor.Error()
	}
	if watcher == nil {
		return nil, ErrorInvalidSocket.Error()
	}

	w := &WatchDescriptor{watcher: watcher}
	w.init(reactor, registry, binding.KindWatch, invalidSocket, nil, log)
	w.callbackUnbind = false

	if registry != nil {
		w.handle = registry.Register(w)
	}
	return w, nil
}

func (w *WatchDescriptor) BindKind() binding.Kind { return binding.KindWatch }

func (w *WatchDescriptor) SelectForRead() bool  { return true }
func (w *WatchDescriptor) SelectForWrite() bool { return false }

// ShouldDelete follows the close state only: a WatchDescriptor has no
// fd, so the base rule "invalid handle means deletable" does not apply.
func (w *WatchDescriptor) ShouldDelete() bool {
	return w.state == stateCloseNow || w.state == stateClosed
}

func (w *WatchDescriptor) Heartbeat(_ int64) {}

func (w *WatchDescriptor) OnWritable() {}

func (w *WatchDescriptor) OnError() { w.scheduleClose(false) }

// Close releases the underlying fsnotify watcher.
func (w *WatchDescriptor) Close() {
	w.hardClose(w, UnbindReasonLocalStop)
	_ = w.watcher.Close()
}

// OnReadable defers entirely to the reactor, which owns consuming
// watcher.Events/Errors and translating them into its own notion of
// filesystem-change notifications.
func (w *WatchDescriptor) OnReadable() {
	_ = w.reactor.ReadInotifyEvents()
}
