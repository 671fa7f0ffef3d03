package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"face-attendance/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	faceSetKey    = "faceset"
	faceSetGenKey = "faceset:gen"
	statsKey      = "stats"
)

// Service управляет кэшированием через Redis
type Service struct {
	client     *redis.Client
	faceSetTTL time.Duration
}

// NewService создает новый cache service
func NewService(ctx context.Context, addr, password string, db int, faceSetTTL time.Duration) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return newService(client, faceSetTTL), nil
}

func newService(client *redis.Client, faceSetTTL time.Duration) *Service {
	if faceSetTTL <= 0 {
		faceSetTTL = 10 * time.Minute
	}
	return &Service{client: client, faceSetTTL: faceSetTTL}
}

// Close закрывает соединение с Redis
func (s *Service) Close() error {
	return s.client.Close()
}

// ============ FACE SET CACHE ============

// GetFaceSet получает восстановленный набор лиц и текущее поколение кэша.
// nil набор - в кэше пусто; поколение нужно передать в SetFaceSet.
func (s *Service) GetFaceSet(ctx context.Context) (*models.FaceSet, int64, error) {
	vals, err := s.client.MGet(ctx, faceSetGenKey, faceSetKey).Result()
	if err != nil {
		return nil, 0, err
	}
	gen, err := parseGeneration(vals[0])
	if err != nil {
		return nil, 0, err
	}

	data, ok := vals[1].(string)
	if !ok {
		return nil, gen, nil // Не найдено в кэше
	}
	var set models.FaceSet
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, gen, err
	}
	return &set, gen, nil
}

// SetFaceSet сохраняет набор, только если с момента чтения поколения gen
// кэш никто не сбрасывал. false - набор устарел и не сохранен.
func (s *Service) SetFaceSet(ctx context.Context, set *models.FaceSet, gen int64) (bool, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return false, err
	}

	stored := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, faceSetGenKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, faceSetKey, data, s.faceSetTTL)
			return nil
		})
		stored = err == nil
		return err
	}, faceSetGenKey)
	if err == redis.TxFailedErr {
		// Поколение сменилось между проверкой и записью
		return false, nil
	}
	return stored, err
}

// InvalidateFaceSet удаляет набор лиц из кэша и сдвигает поколение,
// чтобы уже идущие загрузки не записали старый набор
func (s *Service) InvalidateFaceSet(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, faceSetGenKey)
		pipe.Del(ctx, faceSetKey)
		return nil
	})
	return err
}

func parseGeneration(v interface{}) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(str, 10, 64)
}

// ============ STATS CACHE ============

// GetStats получает статистику из кэша
func (s *Service) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	ok, err := s.getJSON(ctx, statsKey, &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

// SetStats сохраняет статистику в кэш на 5 минут
func (s *Service) SetStats(ctx context.Context, stats *models.Stats) error {
	return s.setJSON(ctx, statsKey, stats, 5*time.Minute)
}

// InvalidateStats очищает кэш статистики
func (s *Service) InvalidateStats(ctx context.Context) error {
	return s.client.Del(ctx, statsKey).Err()
}

// ============ UTILITY ============

func (s *Service) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Не найдено в кэше
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}
