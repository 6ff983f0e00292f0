package source

import "context"

// Source is an external data provider. Invoke runs it once and returns the
// raw text it produced. Invoke blocks until the provider finishes.
type Source interface {
	Name() string
	Invoke(ctx context.Context, queries []string) (string, error)
}

// ArgsFunc builds the command line arguments for a set of queries.
type ArgsFunc func(queries []string) []string
