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
	"fmt"
	"time"

	libval "github.com/go-playground/validator/v10"

	"github.com/nabbar/golib/duration"
	"github.com/nabbar/golib/size"

	"github.com/nabbar/reactor/binding"
)

// Options configures a descriptor at construction time: buffer sizes,
// timeouts, and keepalive tuning. It follows the same JSON/YAML/
// TOML/mapstructure tagging and validator-driven Validate() as the
// teacher's logger/config.Options.
type Options struct {
	// InactivityTimeout closes a connection or datagram descriptor
	// that has seen no read activity for this long (writes do not
	// refresh the activity timestamp). Zero disables the check.
	InactivityTimeout duration.Duration `json:"inactivityTimeout,omitempty" yaml:"inactivityTimeout,omitempty" toml:"inactivityTimeout,omitempty" mapstructure:"inactivityTimeout,omitempty"`

	// PendingConnectTimeout bounds how long an outbound connection may
	// remain in the connect-pending state before it is hard-closed.
	PendingConnectTimeout duration.Duration `json:"pendingConnectTimeout,omitempty" yaml:"pendingConnectTimeout,omitempty" toml:"pendingConnectTimeout,omitempty" mapstructure:"pendingConnectTimeout,omitempty"`

	// KeepAliveIdle and KeepAliveInterval are TCP keepalive settings;
	// KeepAliveCount is the probe count. ApplyOptions does not apply
	// them: EnableKeepalive takes its idle/interval/count as arguments.
	KeepAliveIdle     duration.Duration `json:"keepAliveIdle,omitempty" yaml:"keepAliveIdle,omitempty" toml:"keepAliveIdle,omitempty" mapstructure:"keepAliveIdle,omitempty"`
	KeepAliveInterval duration.Duration `json:"keepAliveInterval,omitempty" yaml:"keepAliveInterval,omitempty" toml:"keepAliveInterval,omitempty" mapstructure:"keepAliveInterval,omitempty"`
	KeepAliveCount    int               `json:"keepAliveCount,omitempty" yaml:"keepAliveCount,omitempty" toml:"keepAliveCount,omitempty" mapstructure:"keepAliveCount,omitempty" validate:"omitempty,min=1,max=16"`

	// ReadBufferSize is validated but not applied by ApplyOptions;
	// connection and datagram reads use a fixed 16 KiB buffer.
	ReadBufferSize size.Size `json:"readBufferSize,omitempty" yaml:"readBufferSize,omitempty" toml:"readBufferSize,omitempty" mapstructure:"readBufferSize,omitempty" validate:"omitempty,min=1024"`

	// MaxOutboundBufSize bounds the outbound queue of a proxy target;
	// crossing it applies backpressure to the proxied-from source.
	MaxOutboundBufSize size.Size `json:"maxOutboundBufSize,omitempty" yaml:"maxOutboundBufSize,omitempty" toml:"maxOutboundBufSize,omitempty" mapstructure:"maxOutboundBufSize,omitempty" validate:"omitempty,min=0"`

	// SimultaneousAcceptCount bounds how many connections a single
	// acceptor readiness event may accept before yielding.
	SimultaneousAcceptCount int `json:"simultaneousAcceptCount,omitempty" yaml:"simultaneousAcceptCount,omitempty" toml:"simultaneousAcceptCount,omitempty" mapstructure:"simultaneousAcceptCount,omitempty" validate:"omitempty,min=1"`
}

// DefaultOptions returns a populated Options. ReadBufferSize equals the
// fixed read buffer size; SimultaneousAcceptCount and KeepAliveCount
// are preset values, not defaults the core applies without options.
func DefaultOptions() *Options {
	return &Options{
		ReadBufferSize:          size.Size(readBufferSize),
		SimultaneousAcceptCount: 16,
		KeepAliveCount:          8,
	}
}

// Validate checks the options struct against its constraint tags.
func (o *Options) Validate() error {
	if err := libval.New().Struct(o); err != nil {
		if _, ok := err.(*libval.InvalidValidationError); ok {
			return ErrorParamsEmpty.Error(err)
		}

		e := ErrorParamsEmpty.Error()
		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e = ErrorParamsEmpty.Error(fmt.Errorf("option field '%s' violates constraint '%s'", er.Namespace(), er.ActualTag()))
		}
		return e
	}
	return nil
}

func durationMicros(d duration.Duration) int64 {
	return int64(time.Duration(d) / time.Microsecond)
}

// applyTimeouts copies the timeout fields onto a base descriptor;
// kind discriminates whether the connect-pending timeout is
// meaningful for this descriptor family. Base timeouts are tracked in
// microseconds, matching Reactor.CurrentLoopTime.
func (o *Options) applyTimeouts(b *base, kind binding.Kind) {
	if o == nil {
		return
	}
	b.inactivityTimeout = durationMicros(o.InactivityTimeout)
	if kind == binding.KindConnection {
		b.pendingConnectTimeout = durationMicros(o.PendingConnectTimeout)
	}
	if o.MaxOutboundBufSize > 0 {
		b.maxOutboundBufSize = int(o.MaxOutboundBufSize)
	}
}

// ApplyOptions lets a caller tune an already-constructed descriptor's
// timeouts and buffer limits in one call, instead of threading Options
// through every New* constructor.
func (c *ConnectionDescriptor) ApplyOptions(o *Options) { o.applyTimeouts(&c.base, binding.KindConnection) }
func (d *DatagramDescriptor) ApplyOptions(o *Options)   { o.applyTimeouts(&d.base, binding.KindDatagram) }
func (a *AcceptorDescriptor) ApplyOptions(o *Options) {
	o.applyTimeouts(&a.base, binding.KindAcceptor)
	if o != nil && o.SimultaneousAcceptCount > 0 {
		a.acceptLimitOverride = o.SimultaneousAcceptCount
	}
}
