// Package commitmsg renders the list of paths a push
// touched as a marker-delimited section of a pull
// request body, and reads it back. Reviewers see what
// changed at a glance; tooling can recover the paths
// from an existing pull request.
package commitmsg
