// Package github talks to GitHub (cloud or enterprise) through go-github.
//
// Store implements git.Backend on top of the Git Data API: blobs, trees and
// commits are created remotely and branches are moved with the refs API, so
// a push needs no local clone and no transport. Provider implements
// git.GitProvider and opens a pull request, or updates the one already open
// for the same head and base.
//
// Both are configured with a Config holding the repository coordinates and
// an access token. Set EnterpriseHost for GitHub Enterprise installations.
package github
