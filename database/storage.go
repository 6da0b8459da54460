package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"options-dashboard/interfaces"
	"options-dashboard/models"
)

const optionSequence = "options"

// LocalStorage implements OptionStore and UserStore on SQLite
type LocalStorage struct {
	db     *gorm.DB
	logger *logrus.Logger

	// Serializes writers so id allocation and list offsets stay consistent.
	writeMu sync.Mutex
}

// NewLocalStorage opens (or creates) the database at dbPath
func NewLocalStorage(dbPath string, log *logrus.Logger) (*LocalStorage, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: readers queue behind an open write transaction
	// instead of seeing it half applied.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.DBOptionContract{},
		&models.DBSequence{},
		&models.DBUser{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &LocalStorage{
		db:     db,
		logger: log,
	}, nil
}

// Create validates the draft and stores it under the next sequence id
func (s *LocalStorage) Create(ctx context.Context, draft interfaces.OptionDraft) (*interfaces.OptionContract, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var row models.DBOptionContract
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := nextID(tx, optionSequence)
		if err != nil {
			return err
		}

		row = toRow(draft.ToContract(id))
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save option: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("option_id", row.ID).Debug("Option contract created")
	return fromRow(&row)
}

// Get retrieves a contract by id
func (s *LocalStorage) Get(ctx context.Context, id int64) (*interfaces.OptionContract, error) {
	var row models.DBOptionContract

	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &interfaces.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get option: %w", err)
	}

	return fromRow(&row)
}

// List returns contracts in insertion order starting at offset
func (s *LocalStorage) List(ctx context.Context, offset int, limit *int) ([]*interfaces.OptionContract, error) {
	var rows []*models.DBOptionContract

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&models.DBOptionContract{}).Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count options: %w", err)
		}

		start, end, err := interfaces.CheckRange(offset, limit, int(total))
		if err != nil {
			return err
		}
		if start == end {
			return nil
		}

		if err := tx.Order("id ASC").Offset(start).Limit(end - start).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	contracts := make([]*interfaces.OptionContract, 0, len(rows))
	for _, row := range rows {
		contract, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}

	return contracts, nil
}

// Update overwrites the fields present in patch
func (s *LocalStorage) Update(ctx context.Context, id int64, patch interfaces.OptionPatch) (*interfaces.OptionContract, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *interfaces.OptionContract
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.DBOptionContract
		if err := tx.First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &interfaces.NotFoundError{ID: id}
			}
			return fmt.Errorf("failed to load option: %w", err)
		}

		current, err := fromRow(&row)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		next := patch.Apply(*current)
		newRow := toRow(next)
		newRow.CreatedAt = row.CreatedAt
		if err := tx.Save(&newRow).Error; err != nil {
			return fmt.Errorf("failed to save option: %w", err)
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("option_id", id).Debug("Option contract updated")
	return updated, nil
}

// Delete removes a contract; its id is never reissued
func (s *LocalStorage) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := s.db.WithContext(ctx).Delete(&models.DBOptionContract{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete option: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &interfaces.NotFoundError{ID: id}
	}

	s.logger.WithField("option_id", id).Debug("Option contract deleted")
	return nil
}

// FindUser retrieves an account by username
func (s *LocalStorage) FindUser(ctx context.Context, username string) (*interfaces.User, error) {
	var dbUser models.DBUser

	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&dbUser).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &interfaces.User{
		Username:       dbUser.Username,
		FullName:       dbUser.FullName,
		Email:          dbUser.Email,
		HashedPassword: dbUser.HashedPassword,
		Disabled:       dbUser.Disabled,
	}, nil
}

// SaveUser inserts or replaces an account keyed by username
func (s *LocalStorage) SaveUser(ctx context.Context, user *interfaces.User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dbUser models.DBUser
		err := tx.Where("username = ?", user.Username).First(&dbUser).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load user: %w", err)
		}

		dbUser.Username = user.Username
		dbUser.FullName = user.FullName
		dbUser.Email = user.Email
		dbUser.HashedPassword = user.HashedPassword
		dbUser.Disabled = user.Disabled

		if err := tx.Save(&dbUser).Error; err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		return nil
	})
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nextID advances the named sequence inside tx and returns the new value
func nextID(tx *gorm.DB, name string) (int64, error) {
	seq := models.DBSequence{Name: name}
	if err := tx.Where(models.DBSequence{Name: name}).FirstOrCreate(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to load sequence %s: %w", name, err)
	}

	seq.Value++
	if err := tx.Save(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}

	return seq.Value, nil
}

func toRow(c interfaces.OptionContract) models.DBOptionContract {
	return models.DBOptionContract{
		ID:             c.ID,
		Ticker:         c.Ticker,
		Underlying:     c.Underlying,
		ContractType:   string(c.ContractType),
		ExerciseStyle:  string(c.ExerciseStyle),
		StrikePrice:    c.StrikePrice.String(),
		ExpirationDate: c.ExpirationDate.String(),
	}
}

func fromRow(row *models.DBOptionContract) (*interfaces.OptionContract, error) {
	strike, err := decimal.NewFromString(row.StrikePrice)
	if err != nil {
		return nil, fmt.Errorf("corrupt strike price for option %d: %w", row.ID, err)
	}
	expiration, err := civil.ParseDate(row.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt expiration date for option %d: %w", row.ID, err)
	}

	return &interfaces.OptionContract{
		ID:             row.ID,
		Ticker:         row.Ticker,
		Underlying:     row.Underlying,
		ContractType:   interfaces.ContractType(row.ContractType),
		ExerciseStyle:  interfaces.ExerciseStyle(row.ExerciseStyle),
		StrikePrice:    strike,
		ExpirationDate: expiration,
	}, nil
}
