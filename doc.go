// Package tuplescript coordinates robot-style components through a
// shared tuple store.
//
// Components and scripts read and write tuples addressed by owner and
// key.  Meta tuples link one address to another, so a mediator can
// rewire what a script reads without changing the script.  Scripts
// run as cooperative tasks: a task only gives up control when it
// sleeps or waits for a subscription event.
//
// The store is in package 'tuples', subscriptions are in 'subs', the
// languages are under 'interpreters', and the scheduler is 'sched'.
// The command is in cmd/tuplescript.
package tuplescript
