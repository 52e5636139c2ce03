package bootstrap

import (
	"errors"
	"time"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DemoEmail       = "demo@lingvoice.local"
	DemoPassword    = "demo123"
	DemoDisplayName = "Demo"
)

type SeedService struct {
	db *gorm.DB
}

func NewSeedService(db *gorm.DB) *SeedService {
	return &SeedService{db: db}
}

func (s *SeedService) SeedAll() error {
	if err := s.seedDemoUser(); err != nil {
		return err
	}
	return nil
}

func (s *SeedService) seedDemoUser() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", DemoEmail).Count(&count).Error; err != nil {
		return err
	}
	if count != 0 {
		return nil // Data already exists, skip
	}
	user, err := models.CreateUser(s.db, DemoEmail, DemoPassword, DemoDisplayName)
	if err != nil {
		return err
	}
	logger.Info("demo user seeded", zap.String("email", user.Email), zap.Uint("id", user.ID))
	return nil
}

// DemoToken a connection token for the seeded user, printed at startup in
// development.
func (s *SeedService) DemoToken(expire time.Duration) (string, error) {
	user, err := models.GetUserByEmail(s.db, DemoEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.New("demo user not seeded")
		}
		return "", err
	}
	return models.BuildAuthToken(user, expire), nil
}
