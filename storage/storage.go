/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage persists the tuple store.
//
// A Journal listens to the store and writes batches of changes to a
// Storage.  Restore loads what a Storage holds back into a store.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Comcast/tuplescript/core"

	"github.com/cenkalti/backoff"
)

// Change is the latest state of one coordinate.  A nil Tuple means
// the tuple was deleted.
type Change struct {
	Ref   core.Ref
	Tuple *core.Tuple

	// Seq is the store's sequence number for the change.
	Seq uint64
}

// Storage is a persistence interface that's suitable for a tuple
// store.
type Storage interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Load returns every stored tuple.
	Load(ctx context.Context) ([]*core.Tuple, error)

	// Write applies the changes atomically.
	Write(ctx context.Context, cs []Change) error
}

// Noop is a Storage that stores nothing.
type Noop struct{}

func (Noop) Open(ctx context.Context) error { return nil }
func (Noop) Close(ctx context.Context) error { return nil }
func (Noop) Load(ctx context.Context) ([]*core.Tuple, error) { return nil, nil }
func (Noop) Write(ctx context.Context, cs []Change) error { return nil }

// Factory makes a Storage for a filename.
type Factory func(filename string) (Storage, error)

// Factories maps the scheme of a storage spec like "bolt:PATH" to a
// Factory.  Backend packages add themselves here in their init.
var Factories = map[string]Factory{
	"none": func(string) (Storage, error) { return Noop{}, nil },
}

// Parse makes a Storage from a spec "SCHEME:PATH".
func Parse(spec string) (Storage, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		parts = append(parts, "")
	}
	f, have := Factories[parts[0]]
	if !have {
		return nil, fmt.Errorf("unknown storage %q", parts[0])
	}
	return f(parts[1])
}

// OpenRetrying calls s.Open with exponential backoff until it
// succeeds, the context is done, or maxElapsed passes.  A database
// file locked by another process is the typical reason to retry.
func OpenRetrying(ctx context.Context, s Storage, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		return s.Open(ctx)
	}, backoff.WithContext(b, ctx))
}
