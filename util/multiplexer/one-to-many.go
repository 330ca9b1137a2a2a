// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

var (
	ErrClosed         = errors.New("multiplexer has been closed")
	ErrReceiverExists = errors.New("receiver with that name already exists")
)

// OneToMany copies every message sent into it to all named receivers, in order.
// A slow receiver holds up the others, so receivers should be drained continuously
type OneToMany[T any] struct {
	inbound   chan T
	outbound  map[string]chan T // Use map here to give names to outbound channels
	bufSize   int
	lock      sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
	done      chan struct{}
	closed    bool
}

// NewOneToMany creates a new plexer. bufSize is the buffer of every receiver channel
func NewOneToMany[T any](bufSize int) *OneToMany[T] {
	return &OneToMany[T]{
		inbound:   make(chan T),
		outbound:  make(map[string]chan T),
		bufSize:   bufSize,
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Get the channel to send things into
func (o *OneToMany[T]) GetSender() chan<- T {
	return o.inbound
}

// Create a new receiver for the multiplexer to send messages to.
// Please do not close this manually, instead use the CloseReceiver func
func (o *OneToMany[T]) MakeReceiver(name string) (<-chan T, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	if _, ok := o.outbound[name]; ok {
		return nil, ErrReceiverExists
	}
	rec := make(chan T, o.bufSize)
	o.outbound[name] = rec
	return rec, nil
}

// Closes a receiver channel with the given name and removes it from the multiplexer
func (o *OneToMany[T]) CloseReceiver(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	if val, ok := o.outbound[name]; ok {
		close(val)
		delete(o.outbound, name)
	}
}

// Receivers returns how many receivers are currently attached
func (o *OneToMany[T]) Receivers() int {
	o.lock.Lock()
	defer o.lock.Unlock()
	return len(o.outbound)
}

// Start this one to many multiplexer
// intended to run as a goroutine (`go plexer.StartPlexer()`), returns once CloseSender was called
func (o *OneToMany[T]) StartPlexer() {
	defer close(o.done)
	for {
		select {
		case msg := <-o.inbound:
			o.lock.Lock()
			for _, c := range o.outbound {
				c <- msg
			}
			o.lock.Unlock()
		case <-o.closeChan:
			o.lock.Lock()
			// No need to send any signal to the receivers, closing makes readers stop
			for name, c := range o.outbound {
				close(c)
				delete(o.outbound, name)
			}
			o.closed = true
			o.lock.Unlock()
			return
		}
	}
}

// Close all receiver channels, mark the plexer as closed and stop the distribution goroutine.
// Blocks until the plexer goroutine is gone. Safe to call more than once
func (o *OneToMany[T]) CloseSender() {
	o.closeOnce.Do(func() {
		close(o.closeChan)
	})
	<-o.done
}
