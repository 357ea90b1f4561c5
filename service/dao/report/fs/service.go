package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	aurl "github.com/viant/afs/url"
	"github.com/viant/opflow/internal/logger"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/dao/criteria"
)

// Service implements a status registry on any afs storage, one JSON document
// per (operation, configuration).  It lets workers running in other
// processes report back to the scheduler.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

// Ensure Service implements dao.Registry
var _ dao.Registry = (*Service)(nil)

// Save persists a report
func (s *Service) Save(ctx context.Context, report *model.Report) error {
	if report == nil {
		return dao.ErrNilEntity
	}
	if report.Operation == "" || report.Config == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report %v: %w", report.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.reportURL(report.Key)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save report to %s: %w", URL, err)
	}
	return nil
}

// Load retrieves a report
func (s *Service) Load(ctx context.Context, key model.Key) (*model.Report, error) {
	if key.Operation == "" || key.Config == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	URL := s.reportURL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check if report %v exists: %w", key, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file %s: %w", URL, err)
	}
	report := &model.Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", URL, err)
	}
	return report, nil
}

// Delete removes a report
func (s *Service) Delete(ctx context.Context, key model.Key) error {
	if key.Operation == "" || key.Config == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.reportURL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check if report %v exists: %w", key, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete report file %s: %w", URL, err)
	}
	return nil
}

// List returns all reports matching the parameters
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list report files: %w", err)
	}
	var reports []*model.Report
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			logger.Warn(ctx, "failed to read report file", "url", object.URL(), "error", err)
			continue
		}
		report := &model.Report{}
		if err := json.Unmarshal(data, report); err != nil {
			logger.Warn(ctx, "failed to unmarshal report file", "url", object.URL(), "error", err)
			continue
		}
		if !criteria.Match(report, parameters) {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// reportURL returns the location of a report; both key parts are escaped so
// arbitrary identifiers map onto a single path segment.
func (s *Service) reportURL(key model.Key) string {
	return aurl.Join(s.baseURL, path.Join(url.PathEscape(key.Operation), url.PathEscape(key.Config)+".json"))
}

// New creates a registry rooted at baseURL, creating it when missing.
func New(ctx context.Context, fs afs.Service, baseURL string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	baseURL = aurl.Normalize(baseURL, file.Scheme)
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create registry directory %s: %w", baseURL, err)
		}
	}
	return &Service{baseURL: baseURL, fs: fs}, nil
}
