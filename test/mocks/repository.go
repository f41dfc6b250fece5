package mocks

import (
	"sort"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/models"
)

// MockUserRepository is an in-memory user store ordered like the database ranking query
type MockUserRepository struct {
	Users []models.User

	// Hooks override the in-memory behavior when set
	GetByIDFunc  func(id uint) (*models.User, error)
	ListByXPFunc func(offset, limit int) ([]models.User, error)

	ListCalls int
}

// NewMockUserRepository creates a mock holding users
func NewMockUserRepository(users ...models.User) *MockUserRepository {
	return &MockUserRepository{Users: users}
}

func (m *MockUserRepository) GetByID(id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	for i := range m.Users {
		if m.Users[i].ID == id {
			u := m.Users[i]
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *MockUserRepository) Count() (int64, error) {
	return int64(len(m.Users)), nil
}

func (m *MockUserRepository) CountWithXPGreaterThan(xp int) (int64, error) {
	var count int64
	for _, u := range m.Users {
		if u.XP > xp {
			count++
		}
	}
	return count, nil
}

// ListByXP orders by xp descending then id ascending
func (m *MockUserRepository) ListByXP(offset, limit int) ([]models.User, error) {
	m.ListCalls++
	if m.ListByXPFunc != nil {
		return m.ListByXPFunc(offset, limit)
	}

	sorted := make([]models.User, len(m.Users))
	copy(sorted, m.Users)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].XP != sorted[j].XP {
			return sorted[i].XP > sorted[j].XP
		}
		return sorted[i].ID < sorted[j].ID
	})

	if offset >= len(sorted) {
		return []models.User{}, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}
