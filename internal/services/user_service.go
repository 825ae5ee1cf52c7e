package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/mezaapp/meza/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// UserService encapsulates the business logic for user accounts.
type UserService struct {
	repo *repository.UserRepository
}

// NewUserService creates a new instance of UserService.
func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// RegisterUser hashes the password and stores the new account.
func (s *UserService) RegisterUser(ctx context.Context, username, emailAddr, password string) (*models.User, error) {
	if username == "" || emailAddr == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if !strings.Contains(emailAddr, "@") {
		return nil, fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	user := &models.User{
		Username:       username,
		Email:          strings.ToLower(emailAddr),
		HashedPassword: string(hashed),
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		logger.Log.WithError(err).Error("Service failed to register user")
		return nil, fmt.Errorf("failed to register user: %v", err)
	}

	logger.Log.WithField("userID", created.ID.Hex()).Info("User registered in service layer")
	return created, nil
}

// AuthenticateUser checks the credentials and returns the account.
func (s *UserService) AuthenticateUser(ctx context.Context, emailAddr, password string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(emailAddr))
	if err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	return user, nil
}

// GetUser retrieves a user by their hex id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %v", err)
	}
	return s.repo.GetUserByID(ctx, objID)
}

// UpdateUsername changes the display name of an account.
func (s *UserService) UpdateUsername(ctx context.Context, id primitive.ObjectID, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Username = username
	return s.repo.UpdateUser(ctx, id, user)
}
