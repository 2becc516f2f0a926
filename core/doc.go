/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package core provides the data model shared by the tuple store,
// the subscription manager, the interpreters, and the scheduler.
//
// A Tuple is an (owner, key) coordinate with either a literal Value
// or a reference (Ref) to another coordinate.  A Value is a closed
// tagged union: Nil, Bool, Int, Float, String, Atom, List, plus a few
// runtime-only kinds (TupleValue, View, Opaque).  Atoms are interned,
// so two atoms with the same name are the same atom.
//
// Errors that scripts can cause are *Error values classified by an
// ErrorKind.  Use errors.Is with the Err* sentinels (for example
// ErrTupleNotFound) to check the kind.
//
// An Interpreter compiles script source into a Program and executes
// it against a Host, which a scheduler provides for each task.  The
// Host gives access to the Space (the store), to subscriptions, and
// to the task's suspension points (Sleep and Await).
package core
