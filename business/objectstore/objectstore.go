// Package objectstore mirrors GTFS snapshots and feature matrices to
// durable blob storage; no ETL logs or diagnostics are written to it
// (spec §6, §8 supplement: the
// original Python source's utils_dynamo.py siblings push these artifacts
// to S3). No AWS SDK or other cloud storage client exists anywhere in
// the retrieved example repositories, so the default backend here is the
// local filesystem behind a small interface -- a real bucket SDK is a
// one-file addition later, documented in DESIGN.md as a justified stdlib
// choice.
package objectstore

import (
	"context"
	"io"
)

// Store is the narrow blob-storage contract this system needs: write a
// key, list keys under a prefix, read a key back.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
