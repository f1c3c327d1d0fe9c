package services

import (
	"context"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
)

// HealthService reports whether the process can serve traffic. The only
// hard dependency is the database; everything else degrades gracefully.
type HealthService struct {
	db *pg.DB
}

func NewHealthService(db *pg.DB) *HealthService {
	return &HealthService{db: db}
}

func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.Read(ctx).DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
