// Package sanguard provides the command-line interface for the sanguard
// batch file sanitizer. It configures the sanitize subcommand, parses
// flags, resolves config precedence, and drives internal/dispatch.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/sanguard/sanguard/cmd/sanguard"
//	func main() { sanguard.Execute() }
package sanguard
