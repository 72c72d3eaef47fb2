package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/logvault-systems/logvault/internal/models"
)

var (
	ErrInvalidKey   = errors.New("invalid API key")
	ErrKeyRevoked   = errors.New("API key revoked")
	ErrInvalidToken = errors.New("invalid management token")
	ErrForbidden    = errors.New("project does not belong to user")
	ErrInvalidName  = errors.New("project name must be 1-100 characters")
)

const maxDescriptionLen = 500

// Service owns users, projects and API keys, and answers the two
// authorization questions the pipeline asks: which project does this API
// key belong to, and may this user manage that project. The two
// credential classes are verified on separate paths and never mix.
type Service struct {
	repo Repository

	mu       sync.Mutex
	rotating map[string]*sync.Mutex
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		rotating: make(map[string]*sync.Mutex),
	}
}

// CreateUser registers a new user with a generated username and returns
// the one-time management token. Only a bcrypt digest of the token's
// secret is stored.
func (s *Service) CreateUser(ctx context.Context) (*models.User, string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("digest management token: %w", err)
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:          userID.String(),
		Username:    generateUsername(),
		TokenDigest: string(digest),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}

	return user, FormatCredential(secret, user.ID), nil
}

// AuthenticateManagement resolves a management token to its user.
func (s *Service) AuthenticateManagement(ctx context.Context, token string) (*models.User, error) {
	secret, userID, ok := SplitCredential(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.TokenDigest), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	return user, nil
}

// CreateProject creates a project owned by the given user and returns it
// together with the one-time formatted API key.
func (s *Service) CreateProject(ctx context.Context, ownerID, name, description string) (*models.Project, string, error) {
	if name == "" || len(name) > 100 {
		return nil, "", ErrInvalidName
	}
	if len(description) > maxDescriptionLen {
		return nil, "", fmt.Errorf("%w: description exceeds %d characters", ErrInvalidName, maxDescriptionLen)
	}

	rawKey, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	projectID, err := uuid.NewV7()
	if err != nil {
		return nil, "", err
	}

	project := &models.Project{
		ID:           projectID.String(),
		Name:         name,
		Description:  description,
		OwnerID:      ownerID,
		APIKeyDigest: DigestKey(rawKey),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, "", err
	}

	return project, FormatCredential(rawKey, project.ID), nil
}

// ListProjects returns the projects owned by a user.
func (s *Service) ListProjects(ctx context.Context, ownerID string) ([]*models.Project, error) {
	return s.repo.ListProjectsByOwner(ctx, ownerID)
}

// RotateAPIKey generates a new API key for the project, invalidating the
// previous one. Rotations for the same project are serialized so two
// concurrent calls cannot race.
func (s *Service) RotateAPIKey(ctx context.Context, ownerID, projectID string) (string, error) {
	lock := s.rotationLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	// Read under the lock so the retired digest is the one actually
	// being replaced.
	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.OwnerID != ownerID {
		return "", ErrForbidden
	}

	rawKey, err := GenerateSecret()
	if err != nil {
		return "", err
	}

	if err := s.repo.RotateProjectKey(ctx, projectID, DigestKey(rawKey), project.APIKeyDigest); err != nil {
		return "", err
	}

	return FormatCredential(rawKey, projectID), nil
}

// AuthenticateIngestion resolves a presented API key to its project ID.
// Digest comparison is constant time. A key retired by rotation yields
// ErrKeyRevoked; anything else that does not match yields ErrInvalidKey.
func (s *Service) AuthenticateIngestion(ctx context.Context, apiKey string) (string, error) {
	rawKey, projectID, ok := SplitCredential(apiKey)
	if !ok {
		return "", ErrInvalidKey
	}

	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return "", ErrInvalidKey
		}
		return "", err
	}

	digest := DigestKey(rawKey)
	if DigestsEqual(digest, project.APIKeyDigest) {
		return project.ID, nil
	}
	if project.RetiredKeyDigest != "" && DigestsEqual(digest, project.RetiredKeyDigest) {
		return "", ErrKeyRevoked
	}
	return "", ErrInvalidKey
}

// AuthorizeProjectAccess reports whether the management token's user owns
// the given project.
func (s *Service) AuthorizeProjectAccess(ctx context.Context, token, projectID string) (bool, error) {
	user, err := s.AuthenticateManagement(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return false, nil
		}
		return false, err
	}

	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return false, nil
		}
		return false, err
	}

	return project.OwnerID == user.ID, nil
}

func (s *Service) rotationLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.rotating[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.rotating[projectID] = lock
	}
	return lock
}

var philosophers = []string{
	"socrates", "plato", "aristotle", "kant", "nietzsche", "confucius",
	"descartes", "locke", "hume", "hegel", "wittgenstein", "sartre",
	"camus", "kierkegaard", "spinoza", "leibniz", "schopenhauer",
	"rousseau", "bentham", "mill", "rawls", "arendt", "foucault",
	"epictetus", "seneca", "aquinas", "hobbes", "berkeley", "heidegger",
}

// generateUsername returns a readable generated username such as
// "spinoza_4821".
func generateUsername() string {
	name := philosophers[rand.Intn(len(philosophers))]
	return fmt.Sprintf("%s_%d", name, 1000+rand.Intn(9000))
}
