package registry

import (
	"context"
	"errors"

	"github.com/logvault-systems/logvault/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrProjectNotFound = errors.New("project not found")
)

// Repository is the persistence contract for users and projects. The
// postgres implementation backs production; the in-memory one backs
// tests and development.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]*models.Project, error)

	// RotateProjectKey swaps in a new key digest, retiring the current one.
	RotateProjectKey(ctx context.Context, projectID, newDigest, retiredDigest string) error

	Healthy(ctx context.Context) bool
}
