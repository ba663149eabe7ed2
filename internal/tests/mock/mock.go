package mock

import (
	"campusgate/internal/model"
	"campusgate/internal/storage"
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// ===================== KV STORAGE =====================

type MockStorage struct {
	mock.Mock
}

func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

func (m *MockStorage) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Set(ctx context.Context, key string, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStorage) MultiSet(ctx context.Context, pairs []storage.Pair) error {
	args := m.Called(ctx, pairs)
	return args.Error(0)
}

func (m *MockStorage) MultiRemove(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

// ===================== AUTHENTICATOR =====================

type MockAuthenticator struct {
	mock.Mock
}

func NewMockAuthenticator() *MockAuthenticator {
	return &MockAuthenticator{}
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (*model.Credentials, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credentials), args.Error(1)
}

func (m *MockAuthenticator) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// ===================== PROFILE SOURCE =====================

type MockProfiles struct {
	mock.Mock
}

func NewMockProfiles() *MockProfiles {
	return &MockProfiles{}
}

func (m *MockProfiles) UploadAvatar(ctx context.Context, filename string, photo io.Reader) (model.User, error) {
	args := m.Called(ctx, filename, photo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockProfiles) UpdateProfile(ctx context.Context, fields model.User) (model.User, error) {
	args := m.Called(ctx, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockProfiles) Profile(ctx context.Context) (model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.User), args.Error(1)
}

// ===================== REDIS CLIENT =====================

type MockRedisClient struct {
	mock.Mock
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{}
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockRedisClient) MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd {
	args := m.Called(ctx, values)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}
