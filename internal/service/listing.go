// listing.go — сервис данных дашборда.
// Отдаёт все complete-записи, новые — первыми. Поиск по подстроке имени
// канонически выполняется клиентом по последнему полному набору;
// серверный ILIKE-фильтр — необязательное удобство для API-потребителей.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/repository"
)

// ListingService — сервис листинга файлов для дашборда.
type ListingService struct {
	repo   repository.FileRepository
	logger *slog.Logger
}

// NewListingService создаёт сервис листинга.
func NewListingService(repo repository.FileRepository, logger *slog.Logger) *ListingService {
	return &ListingService{
		repo:   repo,
		logger: logger.With(slog.String("component", "listing_service")),
	}
}

// List возвращает записи файлов, ORDER BY created_at DESC.
// search — опциональный case-insensitive фильтр по подстроке имени.
// Пустой результат — пустой срез, не nil (JSON: [] вместо null).
func (s *ListingService) List(ctx context.Context, search string) ([]*model.FileRecord, error) {
	records, err := s.repo.List(ctx, repository.ListParams{Search: search})
	if err != nil {
		return nil, fmt.Errorf("листинг файлов: %w", err)
	}

	if records == nil {
		records = []*model.FileRecord{}
	}
	return records, nil
}
