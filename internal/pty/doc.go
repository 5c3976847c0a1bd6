// Package pty runs a program inside a freshly allocated pseudo-terminal and
// relays the caller's terminal to it. It gives the shell a controlling
// terminal, and so job control, when it is started without one.
package pty
