package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() credentialdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cred *credentialdomain.Credential) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credentials (id, org_id, app_id, token, secret, tier, is_active, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		cred.OrgID,
		cred.AppID,
		cred.Token,
		cred.Secret,
		cred.Tier,
		cred.IsActive,
		cred.CreatedAt,
		cred.LastUsedAt,
	).Error
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*credentialdomain.Credential, error) {
	var cred credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, app_id, token, secret, tier, is_active, created_at, last_used_at
		 FROM credentials WHERE token = ? AND is_active = true`,
		token,
	).Scan(&cred).Error
	if err != nil {
		return nil, err
	}
	if cred.ID == 0 {
		return nil, nil
	}
	return &cred, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credentials SET last_used_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}
