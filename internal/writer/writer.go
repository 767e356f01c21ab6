// Package writer serializes an in-memory tree to a new HDF5 file.
//
// The file is built under a temporary ".partial" name and moved to the
// destination only after every object has been written, so a failed run
// never leaves a half-written file at the output path. A file already
// named "<dst>.partial" is treated as the leftover of an earlier run and
// deleted.
package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/scigolib/hdf5"

	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/utils"
)

// ErrOutputExists is returned under NoOverwrite when the destination exists.
var ErrOutputExists = errors.New("output file already exists")

// OverwritePolicy decides what happens when the destination exists.
type OverwritePolicy int

const (
	// Overwrite replaces an existing destination.
	Overwrite OverwritePolicy = iota
	// NoOverwrite fails with ErrOutputExists.
	NoOverwrite
)

func (p OverwritePolicy) String() string {
	if p == NoOverwrite {
		return "no-overwrite"
	}
	return "overwrite"
}

// ParsePolicy accepts "overwrite" and "no-overwrite". Empty means Overwrite.
func ParsePolicy(s string) (OverwritePolicy, error) {
	switch s {
	case "", "overwrite":
		return Overwrite, nil
	case "no-overwrite":
		return NoOverwrite, nil
	}
	return Overwrite, fmt.Errorf("unknown overwrite policy %q", s)
}

// PartialSuffix is appended to the destination while it is being written.
const PartialSuffix = ".partial"

// Option configures WriteFile.
type Option func(*config)

type config struct {
	policy      OverwritePolicy
	gzipLevel   int
	minCompress uint64
	logger      *slog.Logger

	// beforeCommit runs after the partial file is closed, before it is
	// moved into place.
	beforeCommit func()
}

// WithPolicy sets the overwrite policy.
func WithPolicy(p OverwritePolicy) Option {
	return func(c *config) { c.policy = p }
}

// WithGZIP compresses datasets of at least minElements values with the
// given deflate level (1-9). Level 0 disables compression.
func WithGZIP(level int, minElements uint64) Option {
	return func(c *config) {
		c.gzipLevel = level
		c.minCompress = minElements
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WriteFile writes root to dst. The tree is validated before any file is
// created.
func WriteFile(ctx context.Context, dst string, root *tree.Group, opts ...Option) (err error) {
	c := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&c)
	}
	if c.gzipLevel < 0 || c.gzipLevel > 9 {
		return fmt.Errorf("gzip level %d out of range 0-9", c.gzipLevel)
	}

	if err := Validate(root); err != nil {
		return utils.WrapError("validating output tree", err)
	}

	if c.policy == NoOverwrite {
		if _, statErr := os.Stat(dst); statErr == nil {
			return fmt.Errorf("%s: %w", dst, ErrOutputExists)
		}
	}

	partial := dst + PartialSuffix
	switch rmErr := os.Remove(partial); {
	case rmErr == nil:
		c.logger.Warn("removed leftover partial output", "path", partial)
	case !errors.Is(rmErr, os.ErrNotExist):
		return utils.WrapError("removing stale "+partial, rmErr)
	}

	fw, err := hdf5.CreateForWrite(partial, hdf5.CreateTruncate)
	if err != nil {
		return utils.WrapError("creating "+partial, err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = fw.Close()
		}
		_ = os.Remove(partial)
	}()

	s := &serializer{fw: fw, cfg: &c}
	if err = s.writeTree(ctx, root); err != nil {
		return err
	}

	closed = true
	if err = fw.Close(); err != nil {
		return utils.WrapError("closing "+partial, err)
	}
	if c.beforeCommit != nil {
		c.beforeCommit()
	}
	if err = commit(partial, dst, c.policy, c.logger); err != nil {
		return err
	}
	c.logger.Info("wrote output file", "path", dst, "groups", s.groups, "datasets", s.datasets, "links", s.links)
	return nil
}

// commit moves the finished partial file to dst. Under NoOverwrite the file
// is hard linked, which fails when dst has appeared since the first check,
// and the partial name is then dropped.
func commit(partial, dst string, policy OverwritePolicy, logger *slog.Logger) error {
	if policy != NoOverwrite {
		return utils.WrapError("renaming to "+dst, os.Rename(partial, dst))
	}
	err := os.Link(partial, dst)
	switch {
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%s: %w", dst, ErrOutputExists)
	case err != nil:
		return utils.WrapError("linking to "+dst, err)
	}
	if err := os.Remove(partial); err != nil {
		logger.Warn("could not remove partial output", "path", partial, "error", err)
	}
	return nil
}

// Validate checks every dataset and link target without touching disk.
func Validate(root *tree.Group) error {
	return root.Walk(func(p string, n tree.Node) error {
		switch v := n.(type) {
		case *tree.Dataset:
			if err := v.Validate(); err != nil {
				return utils.WrapError(p, err)
			}
		case *tree.Link:
			target, ok := root.Lookup(v.Target)
			if !ok {
				return fmt.Errorf("link %s: target %s does not exist", p, v.Target)
			}
			if _, isLink := target.(*tree.Link); isLink {
				return fmt.Errorf("link %s: target %s is itself a link", p, v.Target)
			}
		}
		return nil
	})
}
