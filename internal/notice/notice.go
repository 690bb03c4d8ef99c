// Package notice keeps the storefront maintenance banner.
package notice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
	TypeSuccess Type = "success"
)

var validTypes = map[Type]bool{TypeInfo: true, TypeWarning: true, TypeError: true, TypeSuccess: true}

type Notice struct {
	Enabled   bool       `json:"enabled"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Disabled is returned when nothing has been saved yet.
func Disabled() Notice {
	return Notice{Enabled: false, Type: TypeInfo}
}

// Store holds the raw JSON blob. RedisStore is the production one.
type Store interface {
	Load(ctx context.Context) ([]byte, error) // nil, nil when absent
	Save(ctx context.Context, b []byte) error
}

type RedisStore struct {
	RDB redis.Cmdable
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	b, err := s.RDB.Get(ctx, redisx.KeyNotice).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (s *RedisStore) Save(ctx context.Context, b []byte) error {
	return s.RDB.Set(ctx, redisx.KeyNotice, b, 0).Err()
}

type Service struct {
	Store Store
	Log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, Log: log, now: time.Now}
}

// Get falls back to the disabled notice when the blob is missing or unreadable.
func (s *Service) Get(ctx context.Context) Notice {
	b, err := s.Store.Load(ctx)
	if err != nil {
		s.Log.Warn("load notice", "err", err)
		return Disabled()
	}
	if b == nil {
		return Disabled()
	}
	var n Notice
	if err := json.Unmarshal(b, &n); err != nil {
		s.Log.Warn("decode notice", "err", err)
		return Disabled()
	}
	return n
}

func (s *Service) Set(ctx context.Context, n Notice) (Notice, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	if !validTypes[n.Type] {
		return Notice{}, apperr.Validation("Invalid notice type %q, expected info, warning, error or success", n.Type)
	}
	if n.Title == "" || n.Message == "" {
		return Notice{}, apperr.Validation("Missing required fields: title, message")
	}
	now := s.now().UTC()
	n.UpdatedAt = &now

	b, err := json.Marshal(n)
	if err != nil {
		return Notice{}, fmt.Errorf("marshal notice: %w", err)
	}
	if err := s.Store.Save(ctx, b); err != nil {
		return Notice{}, apperr.Persistence("save notice", err)
	}
	s.Log.Info("notice updated", "enabled", n.Enabled, "type", n.Type)
	return n, nil
}
