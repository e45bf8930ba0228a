package database

import "errors"

// Backend bundles the stores one process runs against.
// It is built once at startup and passed explicitly to whoever needs it.
type Backend struct {
	Embeddings EmbeddingWriter
	Identities IdentityReader

	closers []func() error
}

// OnClose registers fn to run when the backend is closed, in reverse order of registration.
func (b *Backend) OnClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases every registered resource and joins their errors.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
