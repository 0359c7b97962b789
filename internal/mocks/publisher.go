package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/realtime"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type ChangePublisherMock struct {
	mock.Mock
}

func (m *ChangePublisherMock) PublishChange(ctx context.Context, channel string, event realtime.Event) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}
