package memory

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/dao/criteria"
)

// Service implements an in-memory, lock-free status registry.  All API
// methods work with copies so workers and the scheduler never share a
// report value.
type Service struct {
	reports *xsync.MapOf[model.Key, *model.Report]
}

var _ dao.Registry = (*Service)(nil)

func (s *Service) Save(_ context.Context, report *model.Report) error {
	if report == nil {
		return dao.ErrNilEntity
	}
	if report.Operation == "" || report.Config == "" {
		return dao.ErrInvalidID
	}
	s.reports.Store(report.Key, report.Clone())
	return nil
}

func (s *Service) Load(_ context.Context, key model.Key) (*model.Report, error) {
	if key.Operation == "" || key.Config == "" {
		return nil, dao.ErrInvalidID
	}
	report, ok := s.reports.Load(key)
	if !ok {
		return nil, dao.ErrNotFound
	}
	return report.Clone(), nil
}

func (s *Service) Delete(_ context.Context, key model.Key) error {
	if key.Operation == "" || key.Config == "" {
		return dao.ErrInvalidID
	}
	if _, ok := s.reports.LoadAndDelete(key); !ok {
		return dao.ErrNotFound
	}
	return nil
}

func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*model.Report, error) {
	out := make([]*model.Report, 0, s.reports.Size())
	s.reports.Range(func(_ model.Key, report *model.Report) bool {
		if criteria.Match(report, parameters) {
			out = append(out, report.Clone())
		}
		return true
	})
	return out, nil
}

func New() *Service {
	return &Service{reports: xsync.NewMapOf[model.Key, *model.Report]()}
}
