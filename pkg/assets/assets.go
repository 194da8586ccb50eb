package assets

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// KeyPrefix is where bundles live inside the asset bucket
const KeyPrefix = "assets/"

// Fixed modification time keeps the archive, and so its hash, reproducible
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Asset is a packaged directory, addressed by the hash of its archive
type Asset struct {
	Source string
	Hash   string
	Data   []byte
	Files  int
}

// Key returns the object key the asset is published under
func (a *Asset) Key() string {
	return KeyPrefix + a.Hash + ".zip"
}

// Size returns the archive size in bytes
func (a *Asset) Size() int {
	return len(a.Data)
}

// Location returns where the asset lives once published to bucket
func (a *Asset) Location(bucket string) types.CodeLocation {
	return types.CodeLocation{Bucket: bucket, Key: a.Key()}
}

// Package zips a directory. Entries are added in lexical order with a fixed
// timestamp, so identical contents always produce the same hash.
func Package(dir string) (*Asset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset path %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk asset directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("asset directory %s is empty", dir)
	}
	sort.Strings(files)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &Asset{
		Source: dir,
		Hash:   hex.EncodeToString(sum[:]),
		Data:   buf.Bytes(),
		Files:  len(files),
	}, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	return nil
}

// BucketName returns the configured asset bucket, or one derived from the
// stack name and region
func BucketName(cfg config.Config) string {
	if cfg.Canary.AssetBucket != "" {
		return cfg.Canary.AssetBucket
	}
	return strings.ToLower(cfg.StackName) + "-assets-" + cfg.Region
}
