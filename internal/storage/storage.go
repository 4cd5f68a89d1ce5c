// Package storage reads replay log files from disk, transparently handling
// gzip and zstd compressed recordings.
package storage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// Format is the on-disk encoding of a replay file
type Format int

const (
	Plain Format = iota
	Gzip
	Zstd
)

func (f Format) String() string {
	switch f {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "plain"
	}
}

// Ext returns the file extension used for the format
func (f Format) Ext() string {
	switch f {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect sniffs the format from the leading bytes of a file
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd
	default:
		return Plain
	}
}

// File is a loaded replay file
type File struct {
	Path    string
	Name    string
	Format  Format
	Content string
	Hash    string
}

// ReadReplay reads a replay file, decompressing it if needed
func ReadReplay(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read replay header: %w", err)
	}
	format := Detect(header)

	content, err := decode(br, format)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s replay %s: %w", format, path, err)
	}

	return &File{
		Path:    path,
		Name:    Name(path),
		Format:  format,
		Content: content,
		Hash:    Hash(content),
	}, nil
}

func decode(r io.Reader, format Format) (string, error) {
	switch format {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return "", err
		}
		defer zr.Close()
		r = zr
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return "", err
		}
		defer zr.Close()
		r = zr
	}

	var b strings.Builder
	if _, err := io.Copy(&b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ReadAll loads several replay files concurrently, at most limit at a time.
// Results are in the order of paths.
func ReadAll(ctx context.Context, paths []string, limit int) ([]*File, error) {
	files := make([]*File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := ReadReplay(path)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Hash returns the hex SHA-256 of the content, used as the cache key
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Name returns the display name of a replay path without compression suffixes
func Name(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{Gzip.Ext(), Zstd.Ext()} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// CompressFile writes a compressed copy of path next to it and removes the
// original. It returns the new path.
func CompressFile(path string, format Format) (target string, err error) {
	switch format {
	case Plain:
		return path, nil
	case Gzip, Zstd:
	default:
		return "", fmt.Errorf("unsupported format %v", format)
	}

	source, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer source.Close()

	target = path + format.Ext()
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(target)
			target = ""
		}
	}()

	var w io.WriteCloser
	if format == Gzip {
		w = gzip.NewWriter(out)
	} else if w, err = zstd.NewWriter(out); err != nil {
		return "", err
	}

	if _, err = io.Copy(w, source); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to compress file: %w", err)
	}
	if err = w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress file: %w", err)
	}
	if err = out.Close(); err != nil {
		return "", err
	}

	source.Close()
	if err = os.Remove(path); err != nil {
		return "", err
	}
	return target, nil
}
