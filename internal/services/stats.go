package services

import (
	"context"

	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

const (
	dashboardTopResources = 5
	dashboardRecentItems  = 5
	dashboardRecentEvents = 10
)

// StatsService aggregates platform statistics.
type StatsService struct {
	users     UserRepository
	subjects  SubjectRepository
	resources ResourceRepository
	downloads DownloadRepository
}

// NewStatsService constructs the statistics service.
func NewStatsService(users UserRepository, subjects SubjectRepository, resources ResourceRepository, downloads DownloadRepository) *StatsService {
	return &StatsService{users: users, subjects: subjects, resources: resources, downloads: downloads}
}

// Summary returns the public platform totals.
func (s *StatsService) Summary(ctx context.Context) (types.Summary, error) {
	return s.downloads.Summary(ctx)
}

// Dashboard returns the administrator view.
func (s *StatsService) Dashboard(ctx context.Context) (types.Dashboard, error) {
	var (
		dashboard types.Dashboard
		err       error
	)
	if dashboard.Users, err = s.users.CountByRole(ctx); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.Summary, err = s.downloads.Summary(ctx); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.PopularResources, err = s.downloads.Popular(ctx, dashboardTopResources); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.RecentUsers, err = s.users.Recent(ctx, dashboardRecentItems); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.RecentResources, err = s.resources.List(ctx, store.ResourceFilter{Limit: dashboardRecentItems}); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.RecentDownloads, err = s.downloads.Recent(ctx, 0, dashboardRecentEvents); err != nil {
		return types.Dashboard{}, err
	}
	if dashboard.ResourcesPerSubject, err = s.subjects.ResourceCounts(ctx); err != nil {
		return types.Dashboard{}, err
	}
	return dashboard, nil
}
