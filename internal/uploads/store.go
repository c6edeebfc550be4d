package uploads

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoFiles         = errors.New("no files uploaded")
	ErrTooManyFiles    = errors.New("too many files")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrBadEncoding     = errors.New("malformed base64 data")
)

// Allowed is the attachment whitelist, matched against sniffed content.
var Allowed = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"audio/mpeg",
	"video/mp4",
}

// Store keeps attachments on local disk and hands back public URLs.
type Store struct {
	dir      string
	baseURL  string
	maxBytes int64
	maxFiles int
	log      *zap.Logger
}

func NewStore(dir, baseURL string, maxBytes int64, maxFiles int, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:      dir,
		baseURL:  baseURL,
		maxBytes: maxBytes,
		maxFiles: maxFiles,
		log:      log.Named("uploads"),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// SaveAll checks every file before writing any of them.
func (s *Store) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: at most %d", ErrTooManyFiles, s.maxFiles)
	}

	kinds := make([]*mimetype.MIME, len(files))
	for i, fh := range files {
		mt, err := s.check(fh)
		if err != nil {
			return nil, err
		}
		kinds[i] = mt
	}

	urls := make([]string, 0, len(files))
	for i, fh := range files {
		name := uuid.NewString() + kinds[i].Extension()
		if err := s.write(fh, name); err != nil {
			return nil, err
		}
		s.log.Debug("attachment stored", zap.String("name", name), zap.String("mime", kinds[i].String()), zap.Int64("size", fh.Size))
		urls = append(urls, s.publicURL(name))
	}
	return urls, nil
}

// SaveBase64 stores one file sent as raw base64 or as a data URI. A data
// URI's declared type is ignored; the decoded bytes are sniffed like any
// multipart upload.
func (s *Store) SaveBase64(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if meta, payload, ok := strings.Cut(encoded, ","); ok && strings.HasPrefix(meta, "data:") {
		if !strings.HasSuffix(meta, ";base64") {
			return "", fmt.Errorf("%w: data URI is not base64", ErrBadEncoding)
		}
		encoded = payload
	}
	if encoded == "" {
		return "", ErrNoFiles
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), s.maxBytes)
	}

	mt := mimetype.Detect(data)
	if !slices.ContainsFunc(Allowed, mt.Is) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	s.log.Debug("attachment stored", zap.String("name", name), zap.String("mime", mt.String()), zap.Int("size", len(data)))
	return s.publicURL(name), nil
}

func (s *Store) publicURL(name string) string {
	return s.baseURL + "/uploads/" + name
}

func (s *Store) check(fh *multipart.FileHeader) (*mimetype.MIME, error) {
	if fh.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, fh.Filename, s.maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(Allowed, mt.Is) {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedType, fh.Filename, mt.String())
	}
	return mt, nil
}

func (s *Store) write(fh *multipart.FileHeader, name string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, s.maxBytes)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
