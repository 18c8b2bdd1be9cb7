package protocol

import (
	"errors"
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/roach88/strata/internal/errs"
)

// Discover lazily yields one Protocol per meta.ini found under root, in
// lexical order. The directory is walked as the sequence is consumed, so
// ranging again re-derives the protocols from disk.
//
// A protocol whose metadata cannot be parsed is yielded as an error and
// discovery continues. A missing root yields a single errs.ErrNotFound.
func Discover(root string, defaults Defaults, opts ...Option) iter.Seq2[*Protocol, error] {
	return func(yield func(*Protocol, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root && errors.Is(err, fs.ErrNotExist) {
					return errs.NotFound(root, "protocol directory not found")
				}
				return err
			}
			if d.IsDir() || d.Name() != MetaFile {
				return nil
			}
			p, err := Open(path, defaults, opts...)
			if !yield(p, err) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}
