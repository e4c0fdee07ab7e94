// Package git defines the contracts between the commit-chaining core and
// the systems it drives: object stores that hold blobs, trees and commits,
// reference and branch stores, transports that publish a branch, commit
// signers and pull request providers.
//
// Implementations live in sub-packages: github talks to the GitHub Git Data
// API, local wraps a go-git repository, gitlab and bitbucket open merge and
// pull requests. Repo drives a bare clone through the git CLI and can act as
// a Transport for the local store.
//
// The error types in this package carry the failure kinds callers branch on:
// NotFoundError, PathConflictError, ObjectWriteError, RefUpdateError and
// TransportError.
package git
