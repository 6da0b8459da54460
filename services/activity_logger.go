package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"options-dashboard/interfaces"
)

// Activity actions
const (
	ActionOptionCreated  = "OPTION_CREATED"
	ActionOptionUpdated  = "OPTION_UPDATED"
	ActionOptionDeleted  = "OPTION_DELETED"
	ActionQuoteRefreshed = "QUOTE_REFRESHED"
)

// ActivityLogger records contract mutations to one JSON file per day
type ActivityLogger struct {
	mu     sync.Mutex
	logger *logrus.Logger
	logDir string
	now    func() time.Time
}

// DailyActivityLog represents a day's worth of mutations
type DailyActivityLog struct {
	Date       string          `json:"date"`
	Summary    ActivitySummary `json:"summary"`
	Activities []Activity      `json:"activities"`
}

// ActivitySummary counts the day's activities by kind
type ActivitySummary struct {
	OptionsCreated  int `json:"options_created"`
	OptionsUpdated  int `json:"options_updated"`
	OptionsDeleted  int `json:"options_deleted"`
	QuoteRefreshes  int `json:"quote_refreshes"`
	TotalActivities int `json:"total_activities"`
}

// Activity represents a single mutation
type Activity struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	OptionID  int64                  `json:"option_id,omitempty"`
	Ticker    string                 `json:"ticker,omitempty"`
	Username  string                 `json:"username"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewActivityLogger creates a new activity logger
func NewActivityLogger(logDir string) *ActivityLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Ensure log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.WithError(err).Error("Failed to create activity log directory")
	}

	return &ActivityLogger{
		logger: logger,
		logDir: logDir,
		now:    time.Now,
	}
}

// LogActivity appends an activity to today's log
func (al *ActivityLogger) LogActivity(action string, optionID int64, ticker, username string, details map[string]interface{}) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.now()
	date := now.Format("2006-01-02")

	log, err := al.readLog(date)
	if errors.Is(err, os.ErrNotExist) {
		log = &DailyActivityLog{Date: date, Activities: make([]Activity, 0)}
	} else if err != nil {
		return err
	}

	log.Activities = append(log.Activities, Activity{
		Timestamp: now,
		Action:    action,
		OptionID:  optionID,
		Ticker:    ticker,
		Username:  username,
		Details:   details,
	})

	switch action {
	case ActionOptionCreated:
		log.Summary.OptionsCreated++
	case ActionOptionUpdated:
		log.Summary.OptionsUpdated++
	case ActionOptionDeleted:
		log.Summary.OptionsDeleted++
	case ActionQuoteRefreshed:
		log.Summary.QuoteRefreshes++
	}
	log.Summary.TotalActivities++

	al.logger.WithFields(logrus.Fields{
		"action":    action,
		"option_id": optionID,
		"username":  username,
	}).Info("Activity logged")

	return al.saveLog(log)
}

// GetCurrentLog returns today's log, empty if nothing happened yet
func (al *ActivityLogger) GetCurrentLog() (*DailyActivityLog, error) {
	al.mu.Lock()
	defer al.mu.Unlock()

	date := al.now().Format("2006-01-02")
	log, err := al.readLog(date)
	if errors.Is(err, os.ErrNotExist) {
		return &DailyActivityLog{Date: date, Activities: make([]Activity, 0)}, nil
	}
	return log, err
}

// GetLogForDate retrieves the log for a specific YYYY-MM-DD date
func (al *ActivityLogger) GetLogForDate(date string) (*DailyActivityLog, error) {
	if _, err := civil.ParseDate(date); err != nil {
		return nil, &interfaces.ValidationError{Field: "date", Reason: "must be a calendar date in YYYY-MM-DD format"}
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	return al.readLog(date)
}

// ListAvailableLogs returns the dates that have a log, oldest first
func (al *ActivityLogger) ListAvailableLogs() ([]string, error) {
	files, err := os.ReadDir(al.logDir)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, "activity_") || filepath.Ext(name) != ".json" {
			continue
		}
		// activity_2025-11-17.json
		date := strings.TrimSuffix(strings.TrimPrefix(name, "activity_"), ".json")
		if _, err := civil.ParseDate(date); err == nil {
			dates = append(dates, date)
		}
	}

	sort.Strings(dates)
	return dates, nil
}

func (al *ActivityLogger) filename(date string) string {
	return filepath.Join(al.logDir, fmt.Sprintf("activity_%s.json", date))
}

func (al *ActivityLogger) readLog(date string) (*DailyActivityLog, error) {
	data, err := os.ReadFile(al.filename(date))
	if err != nil {
		return nil, fmt.Errorf("log not found for date %s: %w", date, err)
	}

	var log DailyActivityLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to parse log: %w", err)
	}

	return &log, nil
}

// saveLog writes the log through a temp file so readers never see a torn file
func (al *ActivityLogger) saveLog(log *DailyActivityLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	filename := al.filename(log.Date)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}

	return nil
}
