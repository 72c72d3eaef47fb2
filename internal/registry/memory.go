package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/logvault-systems/logvault/internal/models"
)

// InMemoryRepository keeps users and projects in process memory. It backs
// tests and development runs without a database.
type InMemoryRepository struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	projects map[string]*models.Project
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:    make(map[string]*models.User),
		projects: make(map[string]*models.Project),
	}
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return ErrUserExists
		}
	}

	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *InMemoryRepository) CreateProject(ctx context.Context, project *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *project
	r.projects[project.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	project, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	clone := *project
	return &clone, nil
}

func (r *InMemoryRepository) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Project
	for _, project := range r.projects {
		if project.OwnerID == ownerID {
			clone := *project
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) RotateProjectKey(ctx context.Context, projectID, newDigest, retiredDigest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.projects[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	project.APIKeyDigest = newDigest
	project.RetiredKeyDigest = retiredDigest
	return nil
}

func (r *InMemoryRepository) Healthy(ctx context.Context) bool { return true }
