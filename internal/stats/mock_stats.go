package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater records gauge updates for tests of components that report
// through a StatsProvider.
type MockStatsUpdater struct {
	mock.Mock
}

var _ StatsProvider = (*MockStatsUpdater)(nil)

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

// RegisterMetric is expected once per gauge when a chat server is built.
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}
