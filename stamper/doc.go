// Package stamper reads workspace status files and substitutes
// {{VAR}} placeholders in the contents of a change set. LoadStamps parses
// one or more status files into a variable map; StampChanges rewrites the
// file contents of a set before it is pushed.
package stamper
