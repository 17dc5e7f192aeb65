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

// Package binding provides the process-wide registry mapping opaque
// integer handles to descriptor objects. It replaces the runtime
// downcast a C-family reactor would use (dynamic_cast from a proxy
// target binding back to a concrete descriptor type) with a typed
// lookup: callers ask for a handle's value as a specific Kind and get
// an ok=false instead of undefined behavior on mismatch.
package binding

import (
	libatm "github.com/nabbar/golib/atomic"
)

// Kind tags what concrete descriptor type a Handle resolves to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAcceptor
	KindConnection
	KindDatagram
	KindLoopbreak
	KindWatch
)

func (k Kind) String() string {
	switch k {
	case KindAcceptor:
		return "acceptor"
	case KindConnection:
		return "connection"
	case KindDatagram:
		return "datagram"
	case KindLoopbreak:
		return "loopbreak"
	case KindWatch:
		return "watch"
	default:
		return "unknown"
	}
}

// Handle is the opaque integer identifying a registered object to user
// code across the callback boundary. The zero Handle is never valid.
type Handle uint64

// Bindable is implemented by every descriptor kind so the registry can
// tag entries without needing a type switch at registration time.
type Bindable interface {
	BindKind() Kind
}

type entry struct {
	kind Kind
	obj  Bindable
}

// Registry is the process-wide binding table. It is safe for
// concurrent use, though the reactor's single-threaded contract means
// in practice only one goroutine ever touches it at a time.
type Registry struct {
	m    libatm.Map[Handle]
	next libatm.Value[uint64]
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{
		m: libatm.NewMapAny[Handle](),
	}
	r.next = libatm.NewValue[uint64]()
	r.next.Store(1)
	return r
}

// Register allocates a new Handle for obj and returns it. The handle is
// never zero.
func (r *Registry) Register(obj Bindable) Handle {
	id := r.next.Load()
	for {
		if r.next.CompareAndSwap(id, id+1) {
			break
		}
		id = r.next.Load()
	}

	h := Handle(id)
	r.m.Store(h, &entry{kind: obj.BindKind(), obj: obj})
	return h
}

// Unregister removes a handle from the table. It is a no-op if the
// handle is unknown, so descriptor teardown can call it unconditionally.
func (r *Registry) Unregister(h Handle) {
	r.m.Delete(h)
}

// Get returns the raw Bindable and its Kind for a handle, or
// ok=false if the handle is not registered.
func (r *Registry) Get(h Handle) (obj Bindable, kind Kind, ok bool) {
	v, found := r.m.Load(h)
	if !found {
		return nil, KindUnknown, false
	}

	e, k := v.(*entry)
	if !k || e == nil {
		return nil, KindUnknown, false
	}

	return e.obj, e.kind, true
}

// GetAs resolves a handle and type-asserts it to T in one step. A kind
// mismatch or unknown handle both yield ok=false rather than a panic —
// per the design note this replaces, a bad downcast is a user error,
// not a crash.
func GetAs[T Bindable](r *Registry, h Handle) (v T, ok bool) {
	obj, _, found := r.Get(h)
	if !found {
		return v, false
	}

	v, ok = obj.(T)
	return v, ok
}
