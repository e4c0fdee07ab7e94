// Package changeset models a sparse set of file changes to apply on top of
// an existing repository tree. A Change pairs a slash-delimited path with
// new content and a FileMode, or marks the path as deleted. A Set keys
// changes by path so every path appears at most once.
//
// LoadManifest reads a Set from a YAML or JSON manifest file.
package changeset
