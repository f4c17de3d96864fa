package datasets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/invoice-audit/internal/application"
	domain "github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
	"github.com/bryanwahyu/invoice-audit/internal/infra/tabular"
)

// Invalidator drops cached analyses of a dataset
type Invalidator interface {
	Invalidate(tenant string, id domain.DatasetID)
}

// Service implements use-cases untuk Dataset
type Service struct {
	Repo        domain.Repository
	Store       domain.ObjectStore
	Clock       application.Clock
	Invalidator Invalidator // optional
}

// Command untuk upload dataset
type UploadCommand struct {
	TenantID string
	Filename string
	Body     io.Reader
}

// Upload validasi file → simpan ke object store → simpan metadata
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (*domain.Dataset, error) {
	name := filepath.Base(strings.TrimSpace(cmd.Filename))
	if name == "." || name == "/" || name == "" {
		return nil, ierr.Validationf("filename is required")
	}
	format, err := tabular.FormatOf(name)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(cmd.Body)
	if err != nil {
		return nil, ierr.WrapValidation(err, "reading upload")
	}
	records, err := tabular.Decode(name, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	id := domain.DatasetID(uuid.New().String())
	ds := &domain.Dataset{
		ID:          id,
		TenantID:    cmd.TenantID,
		Filename:    name,
		ObjectKey:   ObjectKey(cmd.TenantID, id, name),
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(content)),
		RowCount:    len(records),
		UploadedAt:  s.Clock.Now(),
	}

	if err := s.Store.Put(ctx, ds.ObjectKey, bytes.NewReader(content), ds.SizeBytes, ds.ContentType); err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, ds); err != nil {
		// metadata gagal, object jangan dibiarkan yatim
		_ = s.Store.Remove(context.WithoutCancel(ctx), ds.ObjectKey)
		return nil, err
	}
	return ds, nil
}

// ObjectKey is {tenant}/datasets/{id}{ext}
func ObjectKey(tenant string, id domain.DatasetID, filename string) string {
	return fmt.Sprintf("%s/datasets/%s%s", tenant, id, strings.ToLower(filepath.Ext(filename)))
}

func (s *Service) List(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Repo.Paginate(ctx, tenant, page, pageSize)
}

func (s *Service) Get(ctx context.Context, tenant string, id domain.DatasetID) (*domain.Dataset, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Open returns the dataset metadata and a reader over the stored file.
// Caller closes the reader.
func (s *Service) Open(ctx context.Context, tenant string, id domain.DatasetID) (*domain.Dataset, io.ReadCloser, error) {
	ds, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Store.Get(ctx, ds.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return ds, rc, nil
}

// Delete hapus object, metadata (beserta komentar) dan cache
func (s *Service) Delete(ctx context.Context, tenant string, id domain.DatasetID) error {
	ds, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.Store.Remove(ctx, ds.ObjectKey); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, tenant, id); err != nil {
		return err
	}
	if s.Invalidator != nil {
		s.Invalidator.Invalidate(tenant, id)
	}
	return nil
}
