package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"civitas/contexts/identity-access/signature-verifier/ports"

	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetSigningKey(ctx context.Context, userID string) (ports.SigningKey, bool, error) {
	var row userKeyModel
	err := r.db.WithContext(ctx).
		Select("id, public_key").
		Where("id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SigningKey{}, false, nil
		}
		r.logger.Error("signing key lookup failed",
			"event", "sigverify_repo_get_key_failed",
			"module", "identity-access/signature-verifier",
			"layer", "adapter",
			"error", err.Error(),
			"user_id", strings.TrimSpace(userID),
		)
		return ports.SigningKey{}, false, err
	}
	if strings.TrimSpace(row.PublicKey) == "" {
		return ports.SigningKey{}, false, nil
	}
	return ports.SigningKey{
		UserID:    row.ID,
		PublicKey: strings.TrimSpace(row.PublicKey),
	}, true, nil
}

type userKeyModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	PublicKey string `gorm:"column:public_key"`
}

func (userKeyModel) TableName() string {
	return "users"
}

var _ ports.KeyReader = (*Repository)(nil)
