// Package digester computes git object identifiers locally so identical
// contents can be recognised before anything is sent to an object store.
package digester
