// Package helm wraps the helm CLI for release operations and the helm SDK
// for chart repository registration.
//
// Release operations shell out through a command.Runner so that every call
// carries the shared kube target flags and failures keep helm's stderr.
package helm
