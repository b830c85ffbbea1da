package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drishti/backend/models"
	"github.com/google/uuid"
)

var ErrDuplicateEmail = errors.New("a user with this email already exists")

// CreateEvent starts a new monitoring session
func (s *Store) CreateEvent(ctx context.Context, name, userID string) (*models.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	ev := models.Event{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &ev, nil
}

// ListEvents returns the events of a user, newest first. Empty userID lists all.
func (s *Store) ListEvents(ctx context.Context, userID string) ([]models.Event, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent loads one event
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	if err := s.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

// AddCommander registers a responder for the scope
func (s *Store) AddCommander(ctx context.Context, c *models.Commander) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("add commander: %w", err)
	}
	s.publishCommanders(ctx, c.EventID)
	return nil
}

// ListCommanders returns the roster of the scope
func (s *Store) ListCommanders(ctx context.Context, eventID string) ([]models.Commander, error) {
	var commanders []models.Commander
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("name ASC").Find(&commanders).Error; err != nil {
		return nil, fmt.Errorf("list commanders: %w", err)
	}
	return commanders, nil
}

// CommanderForCamera returns the commander assigned to a camera, if any
func (s *Store) CommanderForCamera(ctx context.Context, eventID, cameraID string) (*models.Commander, error) {
	var c models.Commander
	err := s.db.WithContext(ctx).Where("event_id = ? AND assigned_camera_id = ?", eventID, cameraID).First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteCommander removes a commander
func (s *Store) DeleteCommander(ctx context.Context, id string) error {
	var c models.Commander
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return notFound(err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Commander{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete commander: %w", err)
	}
	s.publishCommanders(ctx, c.EventID)
	return nil
}

func (s *Store) publishCommanders(ctx context.Context, eventID string) {
	if s.pub == nil {
		return
	}
	commanders, err := s.ListCommanders(ctx, eventID)
	if err != nil {
		return
	}
	s.publish(CommandersSubject(eventID), commanders)
}

// AddUser creates a directory entry. Role defaults to Operator.
func (s *Store) AddUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.Role == "" {
		u.Role = models.RoleOperator
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Avatar == "" {
		u.Avatar = models.AvatarURL(u.Email)
	}
	u.LastActive = s.now()

	var count int64
	s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", u.Email).Count(&count)
	if count > 0 {
		return ErrDuplicateEmail
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// ListUsers returns every user ordered by name
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByEmail loads a user by email address
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// TouchUser refreshes the last-active time
func (s *Store) TouchUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_active", s.now()).Error
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
