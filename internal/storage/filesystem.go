package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"photogen/internal/domain"
)

// DefaultMaxBytes is the upload ceiling applied when Options.MaxBytes is unset.
const DefaultMaxBytes int64 = 12 << 20

// DefaultAllowedExtensions lists the upload extensions accepted by default.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "webp"}

// Options configures a FileStore.
type Options struct {
	UploadDir         string
	GeneratedDir      string
	MaxBytes          int64
	AllowedExtensions []string
}

// FileStore persists uploaded originals and generated outputs as flat
// directories of immutable, uniquely named files.
type FileStore struct {
	uploadDir    string
	generatedDir string
	maxBytes     int64
	allowed      map[string]struct{}
	now          func() time.Time
	writeFile    func(name string, data []byte, perm os.FileMode) error
}

// sidecar is the YAML metadata written next to every generated asset.
type sidecar struct {
	ID           string    `yaml:"id"`
	SourceURL    string    `yaml:"source_url,omitempty"`
	GenerationID string    `yaml:"generation_id,omitempty"`
	Encoding     string    `yaml:"encoding"`
	Size         int64     `yaml:"size"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// GeneratedMeta describes where a generated asset came from.
type GeneratedMeta struct {
	SourceURL    string
	GenerationID string
}

// NewFileStore initializes a FileStore, creating both directories.
func NewFileStore(opts Options) (*FileStore, error) {
	uploadDir := strings.TrimSpace(opts.UploadDir)
	generatedDir := strings.TrimSpace(opts.GeneratedDir)
	if uploadDir == "" || generatedDir == "" {
		return nil, errors.New("storage: upload and generated directories are required")
	}
	for _, dir := range []string{uploadDir, generatedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure directory: %w", err)
		}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		if ext = normalizeExt(ext); ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return &FileStore{
		uploadDir:    uploadDir,
		generatedDir: generatedDir,
		maxBytes:     maxBytes,
		allowed:      allowed,
		now:          time.Now,
		writeFile:    os.WriteFile,
	}, nil
}

// MaxBytes returns the configured upload ceiling.
func (s *FileStore) MaxBytes() int64 {
	return s.maxBytes
}

// UploadDir returns the directory holding uploaded originals.
func (s *FileStore) UploadDir() string {
	return s.uploadDir
}

// GeneratedDir returns the directory holding generated outputs.
func (s *FileStore) GeneratedDir() string {
	return s.generatedDir
}

// Save validates and persists an uploaded original. Format and size are
// checked before anything touches the filesystem.
func (s *FileStore) Save(ctx context.Context, ext string, data []byte) (*domain.UploadHandle, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	ext = normalizeExt(ext)
	if _, ok := s.allowed[ext]; !ok {
		return nil, domain.NewError(domain.ErrInvalidFormat, "storage: save", 0, fmt.Sprintf("extension %q", ext), nil)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, domain.NewError(domain.ErrTooLarge, "storage: save", 0, fmt.Sprintf("%d bytes exceeds %d", len(data), s.maxBytes), nil)
	}
	if len(data) == 0 {
		return nil, domain.NewError(domain.ErrInvalidInput, "storage: save", 0, "empty upload", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := writeUnique(s.uploadDir, ext, data)
	if err != nil {
		return nil, err
	}
	return &domain.UploadHandle{
		ID:        id,
		Ext:       ext,
		Size:      int64(len(data)),
		CreatedAt: s.now().UTC(),
	}, nil
}

// Resolve maps a handle id back to the stored upload and its bytes.
func (s *FileStore) Resolve(ctx context.Context, handleID string) (*domain.UploadHandle, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	id, ok := parseID(handleID)
	if !ok {
		return nil, nil, notFound("storage: resolve", handleID)
	}
	path, err := s.findUpload(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, notFound("storage: resolve", handleID)
		}
		return nil, nil, fmt.Errorf("storage: read upload: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: stat upload: %w", err)
	}
	return &domain.UploadHandle{
		ID:        id,
		Ext:       strings.TrimPrefix(filepath.Ext(path), "."),
		Size:      int64(len(data)),
		CreatedAt: info.ModTime().UTC(),
	}, data, nil
}

// SaveGenerated persists a provider result plus its YAML sidecar.
func (s *FileStore) SaveGenerated(ctx context.Context, data []byte, encoding domain.Encoding, meta GeneratedMeta) (*domain.GeneratedAsset, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if len(data) == 0 {
		return nil, domain.NewError(domain.ErrInvalidInput, "storage: save generated", 0, "empty image", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if encoding == "" {
		encoding = domain.SniffEncoding(data)
	}
	id, err := writeUnique(s.generatedDir, encoding.Ext(), data)
	if err != nil {
		return nil, err
	}
	asset := &domain.GeneratedAsset{
		ID:           id,
		SourceURL:    meta.SourceURL,
		GenerationID: meta.GenerationID,
		Encoding:     encoding,
		Size:         int64(len(data)),
		CreatedAt:    s.now().UTC(),
		Data:         data,
	}
	raw, err := yaml.Marshal(sidecar{
		ID:           asset.ID,
		SourceURL:    asset.SourceURL,
		GenerationID: asset.GenerationID,
		Encoding:     string(asset.Encoding),
		Size:         asset.Size,
		CreatedAt:    asset.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: encode sidecar: %w", err)
	}
	if err := s.writeFile(filepath.Join(s.generatedDir, id+".yaml"), raw, 0o644); err != nil {
		// Without a sidecar the image is unreachable.
		_ = os.Remove(filepath.Join(s.generatedDir, asset.Filename()))
		return nil, fmt.Errorf("storage: write sidecar: %w", err)
	}
	return asset, nil
}

// ResolveGenerated loads a generated asset with its bytes.
func (s *FileStore) ResolveGenerated(ctx context.Context, assetID string) (*domain.GeneratedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := parseID(assetID)
	if !ok {
		return nil, notFound("storage: resolve generated", assetID)
	}
	raw, err := os.ReadFile(filepath.Join(s.generatedDir, id+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("storage: resolve generated", assetID)
		}
		return nil, fmt.Errorf("storage: read sidecar: %w", err)
	}
	var meta sidecar
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("storage: decode sidecar: %w", err)
	}
	encoding, ok := domain.ParseEncoding(meta.Encoding)
	if !ok {
		return nil, fmt.Errorf("storage: sidecar for %s has unknown encoding %q", id, meta.Encoding)
	}
	asset := &domain.GeneratedAsset{
		ID:           id,
		SourceURL:    meta.SourceURL,
		GenerationID: meta.GenerationID,
		Encoding:     encoding,
		Size:         meta.Size,
		CreatedAt:    meta.CreatedAt,
	}
	data, err := os.ReadFile(filepath.Join(s.generatedDir, asset.Filename()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("storage: resolve generated", assetID)
		}
		return nil, fmt.Errorf("storage: read generated: %w", err)
	}
	asset.Data = data
	asset.Size = int64(len(data))
	return asset, nil
}

// GeneratedPath returns the local path of a generated file name such as
// "<uuid>.png". Names that do not match the store's naming scheme are
// rejected with ErrNotFound.
func (s *FileStore) GeneratedPath(name string) (string, error) {
	id, ok := parseID(name)
	if !ok {
		return "", notFound("storage: generated path", name)
	}
	ext := normalizeExt(filepath.Ext(name))
	if ext == "" || ext == "yaml" {
		return "", notFound("storage: generated path", name)
	}
	path := filepath.Join(s.generatedDir, id+"."+ext)
	if _, err := os.Stat(path); err != nil {
		return "", notFound("storage: generated path", name)
	}
	return path, nil
}

func (s *FileStore) findUpload(id string) (string, error) {
	for ext := range s.allowed {
		path := filepath.Join(s.uploadDir, id+"."+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", notFound("storage: resolve", id)
}

// writeUnique creates <uuid>.<ext> exclusively inside dir, retrying on the
// astronomically unlikely event that the name already exists.
func writeUnique(dir, ext string, data []byte) (string, error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		id := uuid.NewString()
		path := filepath.Join(dir, id+"."+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("storage: create file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("storage: write file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("storage: close file: %w", err)
		}
		return id, nil
	}
	return "", errors.New("storage: could not allocate a unique file name")
}

// parseID accepts "<uuid>" or "<uuid>.<ext>" and returns the canonical uuid.
func parseID(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	id, err := uuid.Parse(v)
	if err != nil || len(v) != 36 {
		return "", false
	}
	return id.String(), true
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func notFound(op, id string) error {
	return domain.NewError(domain.ErrNotFound, op, 0, id, nil)
}
