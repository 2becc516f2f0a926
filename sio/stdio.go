/* Copyright 2019 Comcast Cable Communications Management, LLC
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

// Package sio couples external components to the tuple store.
//
// Stdio speaks a JSON-lines protocol on stdin and stdout.  JSONStore
// keeps tuples in a JSON file.
package sio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"
	"github.com/Comcast/tuplescript/subs"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stdio is a coupling that uses In for requests and Out for
// responses and events.
//
// It writes to the store directly, without the scheduler's baton,
// the way any external component does.
type Stdio struct {
	// In is read one request per line.
	In io.Reader

	// Out gets one response or event per line.
	Out io.Writer

	// ShellExpand enables input to include inline shell commands
	// delimited by '<<' and '>>'.  Use at your own risk, of
	// course!
	ShellExpand bool

	// Timestamps adds a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	Logger *zap.Logger

	space  core.Space
	subs   *subs.Manager
	holder string

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewStdio creates a new Stdio with In and Out set to os.Stdin and
// os.Stdout.
func NewStdio(space core.Space, m *subs.Manager) *Stdio {
	return &Stdio{
		In:     os.Stdin,
		Out:    os.Stdout,
		Logger: zap.NewNop(),
		space:  space,
		subs:   m,
		holder: "stdio-" + uuid.New().String(),
	}
}

func (s *Stdio) write(r *Response) {
	if s.Timestamps {
		r.TS = core.Timestamp(time.Now())
	}
	js, err := json.Marshal(r)
	if err != nil {
		s.Logger.Error("marshal response", zap.Error(err))
		return
	}
	js = append(js, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err = s.Out.Write(js); err != nil {
		s.Logger.Error("write response", zap.Error(err))
	}
}

// Run processes requests until EOF, a "quit" line, or the context is
// done.  Subscriptions made through this Stdio end when Run returns.
func (s *Stdio) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		in := bufio.NewReader(s.In)
		for {
			line, err := in.ReadString('\n')
			if line != "" {
				select {
				case <-ctx.Done():
					return
				case lines <- line:
				}
			}
			if err != nil {
				if err != io.EOF {
					errs <- err
				}
				return
			}
		}
	}()

	defer func() {
		n := s.subs.ReleaseHolder(s.holder)
		s.wg.Wait()
		s.Logger.Debug("stdio done", zap.Int("released", n))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errs:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "quit" {
				return nil
			}
			s.line(ctx, line)
		}
	}
}

func (s *Stdio) line(ctx context.Context, line string) {
	if s.EchoInput {
		s.mu.Lock()
		fmt.Fprintf(s.Out, "input %s", line)
		if !strings.HasSuffix(line, "\n") {
			fmt.Fprintln(s.Out)
		}
		s.mu.Unlock()
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return
	}
	if s.ShellExpand {
		var err error
		if line, err = ShellExpand(ctx, line); err != nil {
			s.write(&Response{Error: core.WrapError(core.ParseError, err)})
			return
		}
	}

	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.write(&Response{Error: core.WrapError(core.ParseError, err)})
		return
	}

	result, err := s.Do(ctx, &req)
	r := &Response{
		ID: req.ID,
	}
	if err != nil {
		var ce *core.Error
		if !errors.As(err, &ce) {
			ce = core.WrapError("Error", err)
		}
		r.Error = ce
	} else {
		r.Result = result
		if sub, is := result.(subscribed); is {
			r.Result = nil
			r.Sub = uint64(sub)
		}
	}
	s.write(r)
}

type subscribed core.SubID

// Do performs one request and returns its JSON-ready result.
func (s *Stdio) Do(ctx context.Context, req *Request) (interface{}, error) {
	s.Logger.Debug("request", zap.String("op", req.Op), zap.Int("owner", req.Owner), zap.String("key", req.Key))

	switch req.Op {
	case "set", "append":
		v, err := core.FromJSON(req.Value)
		if err != nil {
			return nil, core.WrapError(core.TypeMismatch, err)
		}
		var t *core.Tuple
		if req.Op == "set" {
			t, err = s.space.Set(req.Owner, req.Key, v)
		} else {
			t, err = s.space.Append(req.Owner, req.Key, v)
		}
		if err != nil {
			return nil, err
		}
		return t, nil

	case "set_meta":
		return s.space.SetMeta(req.Owner, req.Key, core.Ref{Owner: req.TargetOwner, Key: req.TargetKey})

	case "declare_meta":
		return s.space.DeclareMeta(req.Owner, req.Key)

	case "get":
		return s.space.Get(req.Owner, req.Key)

	case "delete":
		return s.space.Delete(req.Owner, req.Key)

	case "view":
		p, err := match.NewPattern(req.Owner, req.Key)
		if err != nil {
			return nil, core.WrapError(core.InvalidKey, err)
		}
		return s.space.Snapshot(p).Tuples(), nil

	case "subscribe":
		p, err := match.NewPattern(req.Owner, req.Key)
		if err != nil {
			return nil, core.WrapError(core.InvalidKey, err)
		}
		sub := s.subs.Subscribe(s.holder, p)
		s.wg.Add(1)
		go s.forward(ctx, sub.ID)
		return subscribed(sub.ID), nil

	case "unsubscribe":
		id := core.SubID(req.Sub)
		holder, err := s.subs.Holder(id)
		if err != nil || holder != s.holder {
			return nil, core.Errorf(core.InvalidKey, "no subscription %d", req.Sub)
		}
		return true, s.subs.Unsubscribe(id)

	default:
		return nil, core.Errorf(core.ParseError, "unknown op %q", req.Op)
	}
}

// forward writes the subscription's events until it's gone.
func (s *Stdio) forward(ctx context.Context, id core.SubID) {
	defer s.wg.Done()
	for {
		ev, err := s.subs.Await(ctx, id, 0)
		if err != nil {
			if !errors.Is(err, core.Unsubscribed) && ctx.Err() == nil {
				s.Logger.Warn("subscription ended", zap.Uint64("sub", uint64(id)), zap.Error(err))
			}
			return
		}
		s.write(&Response{
			Sub:   uint64(id),
			Event: NewEvent(ev),
		})
	}
}
