package mqtt

import (
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Publish(topic string, retained bool, payload interface{}) error {
	args := m.Called(topic, retained, payload)
	return args.Error(0)
}

func (m *MockClient) Close() {
	m.Called()
}

func (m *MockClient) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}
