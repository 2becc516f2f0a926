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

// Package match implements the owner/key pattern matcher used by
// snapshots and subscriptions.
//
// A key is a path of segments separated by '.' (or '/').  A pattern
// is an owner and a key path where the owner may be AnyOwner and
// where any segment may be a wildcard ("*") or a variable ("?name").
// A variable matches any one segment, but every occurrence of the same
// variable in a pattern must match the same segment.
package match

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// AnyOwner is the owner wildcard.
	AnyOwner = -1

	// MaxKeyDepth is the maximum number of segments in a key.
	MaxKeyDepth = 7

	// Wildcard matches any one segment.
	Wildcard = "*"
)

var (
	// EmptyKey occurs when a key has no segments at all.
	EmptyKey = errors.New("empty key")

	// EmptySegment occurs for keys like "a..b".
	EmptySegment = errors.New("empty key segment")

	// TooDeep occurs when a key has more than MaxKeyDepth segments.
	TooDeep = fmt.Errorf("key deeper than %d segments", MaxKeyDepth)
)

// IsVariable reports if the string represents a pattern variable.
//
// All pattern variables start with a '?".
func IsVariable(s string) bool {
	return strings.HasPrefix(s, "?")
}

// IsAnonymousVariable detects a variable of the form '?', which is
// just a wildcard.
func IsAnonymousVariable(s string) bool {
	return s == "?"
}

// SplitKey parses a key into its segments.  Both '.' and '/' are
// separators.
func SplitKey(key string) ([]string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, EmptyKey
	}
	segs := strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '/'
	})
	// FieldsFunc drops empty fields, so count separators to
	// detect them.
	n := strings.Count(key, ".") + strings.Count(key, "/") + 1
	if len(segs) != n {
		return nil, EmptySegment
	}
	if MaxKeyDepth < len(segs) {
		return nil, TooDeep
	}
	return segs, nil
}

// CanonicalKey returns the '.'-joined form of the given key.
func CanonicalKey(key string) (string, error) {
	segs, err := SplitKey(key)
	if err != nil {
		return "", err
	}
	return strings.Join(segs, "."), nil
}

// Pattern is an owner and a key path that can contain wildcards and
// variables.
type Pattern struct {
	Owner int      `json:"owner"`
	Segs  []string `json:"segs"`
}

// NewPattern makes a Pattern from an owner and a key path.
func NewPattern(owner int, key string) (Pattern, error) {
	segs, err := SplitKey(key)
	if err != nil {
		return Pattern{}, err
	}
	if owner < AnyOwner {
		return Pattern{}, fmt.Errorf("bad owner %d", owner)
	}
	return Pattern{
		Owner: owner,
		Segs:  segs,
	}, nil
}

// ParsePattern parses "owner:key".
func ParsePattern(s string) (Pattern, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Pattern{}, fmt.Errorf("pattern %q isn't owner:key", s)
	}
	owner, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: bad owner: %w", s, err)
	}
	return NewPattern(owner, parts[1])
}

func (p Pattern) Key() string {
	return strings.Join(p.Segs, ".")
}

func (p Pattern) String() string {
	return strconv.Itoa(p.Owner) + ":" + p.Key()
}

// IsLiteral reports whether the pattern names exactly one
// coordinate.
func (p Pattern) IsLiteral() bool {
	if p.Owner == AnyOwner {
		return false
	}
	for _, s := range p.Segs {
		if s == Wildcard || IsVariable(s) {
			return false
		}
	}
	return true
}

// Matches reports whether the given coordinate matches the pattern.
func (p Pattern) Matches(owner int, key string) bool {
	if p.Owner != AnyOwner && p.Owner != owner {
		return false
	}
	segs, err := SplitKey(key)
	if err != nil || len(segs) != len(p.Segs) {
		return false
	}
	var bound map[string]string
	for i, ps := range p.Segs {
		switch {
		case ps == Wildcard, IsAnonymousVariable(ps):
		case IsVariable(ps):
			if have, is := bound[ps]; is {
				if have != segs[i] {
					return false
				}
				continue
			}
			if bound == nil {
				bound = make(map[string]string, 2)
			}
			bound[ps] = segs[i]
		default:
			if ps != segs[i] {
				return false
			}
		}
	}
	return true
}
