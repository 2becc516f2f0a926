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

package sio

import (
	"context"
	"io"
	"os"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/storage"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/goccy/go-json"
)

// JSONStore is a primitive facility to store tuples as JSON in a
// file.
//
// Not glamorous or efficient: every write rewrites the whole file.
// It implements storage.Storage.
type JSONStore struct {
	// StateOutputFilename, if not empty, will be the filename
	// for writing state as JSON.
	StateOutputFilename string

	// StateInputFilename optionally gives a filename that
	// contains tuples to return when Load is called.
	StateInputFilename string

	state map[core.Ref]*core.Tuple
}

func NewJSONStore(in, out string) *JSONStore {
	return &JSONStore{
		StateInputFilename:  in,
		StateOutputFilename: out,
		state:               make(map[core.Ref]*core.Tuple, 64),
	}
}

func (s *JSONStore) Open(ctx context.Context) error {
	if s.state == nil {
		s.state = make(map[core.Ref]*core.Tuple, 64)
	}
	return nil
}

// Close writes out the state if StateOutputFilename isn't empty.
func (s *JSONStore) Close(ctx context.Context) error {
	return s.WriteState(ctx)
}

// Load reads s.StateInputFilename, which should contain a JSON array
// of tuples.  A missing file means no tuples.
func (s *JSONStore) Load(ctx context.Context) ([]*core.Tuple, error) {
	if s.StateInputFilename == "" {
		return nil, nil
	}
	f, err := os.Open(s.StateInputFilename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ts, err := ReadTuples(f)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		s.state[t.Ref()] = t
	}
	return ts, nil
}

// Write applies the changes to the in-memory state and writes the
// file.
func (s *JSONStore) Write(ctx context.Context, cs []storage.Change) error {
	for _, c := range cs {
		if c.Tuple == nil {
			delete(s.state, c.Ref)
		} else {
			s.state[c.Ref] = c.Tuple
		}
	}
	return s.WriteState(ctx)
}

// Tuples returns the current state in (owner, key) order.
func (s *JSONStore) Tuples() []*core.Tuple {
	acc := make([]*core.Tuple, 0, len(s.state))
	for _, t := range s.state {
		acc = append(acc, t)
	}
	tuples.SortTuples(acc)
	return acc
}

// WriteState writes all tuples as JSON.
func (s *JSONStore) WriteState(ctx context.Context) error {
	if s.StateOutputFilename == "" {
		return nil
	}
	f, err := os.Create(s.StateOutputFilename)
	if err != nil {
		return err
	}
	if err = WriteTuples(f, s.Tuples()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadTuples reads a JSON array of tuples.
func ReadTuples(r io.Reader) ([]*core.Tuple, error) {
	var ts []*core.Tuple
	if err := json.NewDecoder(r).Decode(&ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// WriteTuples writes tuples as an indented JSON array.
func WriteTuples(w io.Writer, ts []*core.Tuple) error {
	if ts == nil {
		ts = []*core.Tuple{}
	}
	js, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return err
	}
	js = append(js, '\n')
	_, err = w.Write(js)
	return err
}
