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

package core

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// ToJSON converts a Value into something encoding/json-compatible.
//
// Atoms become {"atom":NAME}.  Tuples become objects.  Opaque values
// become their string rendering.
func ToJSON(v Value) interface{} {
	switch x := v.(type) {
	case nil, Nil:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Atom:
		return map[string]interface{}{"atom": x.Name()}
	case List:
		acc := make([]interface{}, len(x))
		for i, y := range x {
			acc[i] = ToJSON(y)
		}
		return acc
	case *TupleValue:
		return x.T
	case *View:
		return x.Tuples()
	default:
		return v.String()
	}
}

// FromJSON is the inverse of ToJSON for the JSON subset that maps to
// Values.
//
// Integral numbers become Ints.
func FromJSON(x interface{}) (Value, error) {
	switch vv := x.(type) {
	case nil:
		return NilValue, nil
	case bool:
		return Bool(vv), nil
	case string:
		return String(vv), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(vv), 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := vv.Float64()
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case float64:
		if vv == math.Trunc(vv) && math.Abs(vv) < 1<<53 {
			return Int(int64(vv)), nil
		}
		return Float(vv), nil
	case int:
		return Int(vv), nil
	case int64:
		return Int(vv), nil
	case []interface{}:
		acc := make(List, len(vv))
		for i, y := range vv {
			v, err := FromJSON(y)
			if err != nil {
				return nil, err
			}
			acc[i] = v
		}
		return acc, nil
	case map[string]interface{}:
		if name, is := vv["atom"].(string); is && len(vv) == 1 {
			return Intern(name), nil
		}
		return nil, fmt.Errorf("can't represent object %v as a value", vv)
	default:
		return nil, fmt.Errorf("can't represent %T as a value", x)
	}
}

type jsonTuple Tuple

type tupleJSON struct {
	*jsonTuple
	Value interface{} `json:"value,omitempty"`
}

func (t *Tuple) MarshalJSON() ([]byte, error) {
	var v interface{}
	if !t.IsMeta {
		v = ToJSON(t.Payload())
	}
	return json.Marshal(tupleJSON{
		jsonTuple: (*jsonTuple)(t),
		Value:     v,
	})
}

func (t *Tuple) UnmarshalJSON(bs []byte) error {
	var acc tupleJSON
	acc.jsonTuple = (*jsonTuple)(t)
	if err := json.Unmarshal(bs, &acc); err != nil {
		return err
	}
	if t.IsMeta {
		t.Value = nil
		return nil
	}
	v, err := FromJSON(acc.Value)
	if err != nil {
		return err
	}
	t.Value = v
	return nil
}
