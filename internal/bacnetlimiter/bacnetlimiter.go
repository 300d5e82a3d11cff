/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bacnetlimiter implements the second process-wide singleton named
// in spec.md §9: a global semaphore bounding concurrent BACnet scans to 5
// regardless of the dispatcher's own per-host concurrency, since contention
// is on UDP socket/broadcast resources shared across the whole run.
package bacnetlimiter

import "context"

// DefaultCapacity is the global BACnet concurrency bound from spec.md §5.
const DefaultCapacity = 5

// Limiter is a counting semaphore with FIFO queueing (buffered channel
// acquire/release), matching spec.md §8's boundary behaviour: with N>5
// concurrent acquirers, exactly 5 run at a time and the rest queue in order.
type Limiter struct {
	sem chan struct{}
}

// New creates a limiter with the given capacity.
func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Limiter{sem: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is canceled.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Safe to call on every exit path, including after an
// error, per spec.md §5's "release on all exit paths" contract.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
	default:
	}
}

// InUse reports the number of currently held slots, for observability/tests.
func (l *Limiter) InUse() int {
	return len(l.sem)
}

type ctxKey struct{}

// WithContext threads a limiter through a context.Context value.
func WithContext(ctx context.Context, l *Limiter) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the limiter previously attached with WithContext.
func FromContext(ctx context.Context) *Limiter {
	l, _ := ctx.Value(ctxKey{}).(*Limiter)
	return l
}
