package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recordUseTimeout = 5 * time.Second

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo credentialdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo credentialdomain.Repository
}

func New(p ServiceParam) credentialdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("credential.service"),
		repo: p.Repo,
	}
}

func (s *Service) Lookup(ctx context.Context, token string) (*credentialdomain.Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, credentialdomain.ErrInvalidToken
	}

	cred, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, credentialdomain.ErrNotFound
	}
	return cred, nil
}

// RecordUse stamps last_used_at in the background. The authentication path
// must never wait on or fail because of this write.
func (s *Service) RecordUse(id snowflake.ID, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordUseTimeout)
		defer cancel()

		if err := s.repo.TouchLastUsed(ctx, s.db, id, at.UTC()); err != nil {
			s.log.Warn("record credential use failed",
				zap.String("credential_id", id.String()),
				zap.Error(err),
			)
		}
	}()
}
