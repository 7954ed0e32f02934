package blockvalidation

import (
	"github.com/bitcoin-sv/chaincore/model"
	"github.com/stretchr/testify/mock"
)

type MockChainStateProvider struct {
	mock.Mock
}

func (m *MockChainStateProvider) ChainState(branch *model.Branch) (*model.ChainState, error) {
	args := m.Called(branch)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, nil
	}

	return args.Get(0).(*model.ChainState), nil
}

type MockPopulator struct {
	mock.Mock
}

// Populate reports the configured error synchronously.
func (m *MockPopulator) Populate(branch *model.Branch, handler func(error)) {
	args := m.Called(branch)
	handler(args.Error(0))
}

type MockScriptVerifier struct {
	mock.Mock
}

func (m *MockScriptVerifier) VerifyInput(tx *model.Tx, index int, state *model.ChainState) error {
	args := m.Called(tx, index, state)
	return args.Error(0)
}

// MockValidator reports the configured stage errors synchronously.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Start() {
	m.Called()
}

func (m *MockValidator) Stop() {
	m.Called()
}

func (m *MockValidator) Check(block *model.Block, handler func(error)) {
	args := m.Called(block)
	handler(args.Error(0))
}

func (m *MockValidator) Accept(branch *model.Branch, handler func(error)) {
	args := m.Called(branch)
	handler(args.Error(0))
}

func (m *MockValidator) Connect(branch *model.Branch, handler func(error)) {
	args := m.Called(branch)
	handler(args.Error(0))
}

func (m *MockValidator) HitRate() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}
