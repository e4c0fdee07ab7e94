// Package branch resolves the base branch of a push and
// makes sure the target branch exists.
package branch
