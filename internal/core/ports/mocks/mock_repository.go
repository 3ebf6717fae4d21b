package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// MockProjectRepository is an in-memory ProjectRepository. It shares its
// card map with a MockCardRepository so deletes cascade like the real one.
type MockProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
	cards    *MockCardRepository
	nextID   int

	// DeleteErr, when set, is returned by DeleteProject
	DeleteErr error
}

// NewMockProjectRepository creates a new mock project repository
func NewMockProjectRepository(cards *MockCardRepository) *MockProjectRepository {
	return &MockProjectRepository{
		projects: make(map[string]domain.Project),
		cards:    cards,
	}
}

var _ ports.ProjectRepository = (*MockProjectRepository)(nil)

func (m *MockProjectRepository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockProjectRepository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, domain.Wrap(domain.ErrNotFound, "load", "project", id, nil)
	}
	return &p, nil
}

func (m *MockProjectRepository) SaveProject(ctx context.Context, p *domain.Project) error {
	if p.OutputRoot == "" {
		p.OutputRoot = domain.DefaultFolder
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *MockProjectRepository) DeleteProject(ctx context.Context, id string) (*domain.Cascade, error) {
	if m.DeleteErr != nil {
		return nil, m.DeleteErr
	}
	if m.cards != nil && m.cards.ListErr != nil {
		return nil, m.cards.ListErr
	}
	p, err := m.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	cascade := &domain.Cascade{Project: p}
	if m.cards != nil {
		cascade.Cards = m.cards.removeProject(id)
	}

	m.mu.Lock()
	delete(m.projects, id)
	m.mu.Unlock()
	return cascade, nil
}

func (m *MockProjectRepository) GenerateProjectID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("proj-%05d-0000", m.nextID), nil
}

// MockCardRepository is an in-memory CardRepository
type MockCardRepository struct {
	mu     sync.RWMutex
	cards  map[string]domain.Card
	nextID int

	// ListErr, when set, is returned by ListCards next to the cards, the way
	// the file store reports corrupt records
	ListErr error
}

// NewMockCardRepository creates a new mock card repository
func NewMockCardRepository() *MockCardRepository {
	return &MockCardRepository{cards: make(map[string]domain.Card)}
}

var _ ports.CardRepository = (*MockCardRepository)(nil)

func (m *MockCardRepository) ListCards(ctx context.Context, projectID string) ([]domain.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Card, 0, len(m.cards))
	for _, c := range m.cards {
		if projectID == "" || c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, m.ListErr
}

func (m *MockCardRepository) GetCard(ctx context.Context, projectID, cardID string) (*domain.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cards[cardID]
	if !ok || c.ProjectID != projectID {
		return nil, domain.Wrap(domain.ErrNotFound, "load", "card", cardID, nil)
	}
	return &c, nil
}

func (m *MockCardRepository) SaveCard(ctx context.Context, c *domain.Card) error {
	if c.OutputSubfolder == "" {
		c.OutputSubfolder = domain.DefaultFolder
	}
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.cards[c.ID]; ok && stored.ProjectID != c.ProjectID {
		return domain.Wrap(domain.ErrConflict, "save", "card", c.ID, nil)
	}
	m.cards[c.ID] = *c
	return nil
}

func (m *MockCardRepository) UpdateCard(ctx context.Context, projectID, cardID string, fn func(c *domain.Card) error) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cards[cardID]
	if !ok || c.ProjectID != projectID {
		return nil, domain.Wrap(domain.ErrNotFound, "update", "card", cardID, nil)
	}
	// mutate a copy so a failed fn leaves the stored card alone
	c.ArchivedImages = append([]string(nil), c.ArchivedImages...)
	c.FavoriteImages = append([]string(nil), c.FavoriteImages...)
	if err := fn(&c); err != nil {
		if err == ports.ErrSkipWrite {
			stored := m.cards[cardID]
			return &stored, nil
		}
		return nil, err
	}
	m.cards[cardID] = c
	return &c, nil
}

func (m *MockCardRepository) DeleteCard(ctx context.Context, projectID, cardID string) (*domain.Cascade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cards[cardID]
	if !ok || c.ProjectID != projectID {
		return nil, domain.Wrap(domain.ErrNotFound, "delete", "card", cardID, nil)
	}
	delete(m.cards, cardID)
	return &domain.Cascade{Cards: []domain.Card{c}}, nil
}

func (m *MockCardRepository) GenerateCardID(ctx context.Context, projectID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("card-%05d-0000", m.nextID), nil
}

func (m *MockCardRepository) removeProject(projectID string) []domain.Card {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []domain.Card
	for id, c := range m.cards {
		if c.ProjectID == projectID {
			removed = append(removed, c)
			delete(m.cards, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed
}

// MockKeyRepository is an in-memory KeyRepository
type MockKeyRepository struct {
	mu   sync.Mutex
	ring domain.Keyring

	// Lookups counts GetKeys calls
	Lookups int
}

func NewMockKeyRepository(keys ...domain.APIKey) *MockKeyRepository {
	return &MockKeyRepository{ring: domain.Keyring{Keys: keys}}
}

var _ ports.KeyRepository = (*MockKeyRepository)(nil)

func (m *MockKeyRepository) SaveKey(ctx context.Context, name, key string) error {
	if err := domain.ValidateKey(name, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.Put(name, key)
	return nil
}

func (m *MockKeyRepository) GetKeys(ctx context.Context) ([]domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	return append([]domain.APIKey(nil), m.ring.Keys...), nil
}
