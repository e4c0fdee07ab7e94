// Package local implements the git object, ref and branch stores on top of
// a go-git repository, either on disk (typically a bare clone made with
// git.Clone) or in memory. Store also implements git.Transport by pushing
// through go-git's remote support.
package local
