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

// Package testutil helps tests run scripts without a scheduler.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"
	"github.com/Comcast/tuplescript/subs"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Host is a core.Host over a fresh store.  Subscriptions belong to
// the holder "test".
type Host struct {
	Store *tuples.Store
	Subs  *subs.Manager

	// Out collects script output.
	Out bytes.Buffer

	K   core.Kernel
	Log *zap.Logger
}

// NewHost makes a Host for the kernel "k1" with id 100.
func NewHost() *Host {
	h := &Host{
		Store: tuples.NewStore(nil),
		Subs:  subs.NewManager(nil),
		K:     core.Kernel{Name: "k1", ID: 100},
		Log:   zap.NewNop(),
	}
	h.Store.AddListener(h.Subs)
	return h
}

func (h *Host) Space() core.Space { return h.Store }

func (h *Host) Kernel() core.Kernel { return h.K }

func (h *Host) Output() io.Writer { return &h.Out }

func (h *Host) Logger() *zap.Logger { return h.Log }

func (h *Host) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (h *Host) Subscribe(p match.Pattern) (core.SubID, error) {
	return h.Subs.Subscribe("test", p).ID, nil
}

func (h *Host) Poll(id core.SubID) (core.Event, bool, error) {
	return h.Subs.Poll(id)
}

func (h *Host) Await(ctx context.Context, id core.SubID, timeout time.Duration) (core.Event, error) {
	return h.Subs.Await(ctx, id, timeout)
}

func (h *Host) Unsubscribe(id core.SubID) error {
	return h.Subs.Unsubscribe(id)
}

// Get returns the value of the tuple at owner:key.  A missing tuple
// fails the test.
func (h *Host) Get(t testing.TB, owner int, key string) core.Value {
	t.Helper()
	got, err := h.Store.Get(owner, key)
	if err != nil {
		t.Fatal(err)
	}
	return got.Value
}

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}
