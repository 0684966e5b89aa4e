package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lobby/internal/cache"
	"lobby/internal/model"
)

var ErrInvalidJSON = errors.New("body is not valid JSON")

// RawOrders returns the cached order list exactly as stored.
func (s *OrderService) RawOrders() (json.RawMessage, bool) {
	return s.cache.Load(cache.KeyOrders)
}

// OverwriteRawOrders replaces the cached order list with raw, unvalidated.
// If the new content decodes to a list it is published to subscribers.
func (s *OrderService) OverwriteRawOrders(_ context.Context, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return ErrInvalidJSON
	}

	snapshot, err := s.overwriteLocked(raw)
	if err != nil {
		return err
	}
	s.publish(snapshot)
	return nil
}

func (s *OrderService) overwriteLocked(raw json.RawMessage) (versioned, error) {
	defer s.cache.Lock(cache.KeyOrders)()

	if err := s.cache.Save(cache.KeyOrders, raw); err != nil {
		s.cacheWriteFailures.Add(1)
		return versioned{}, fmt.Errorf("overwrite orders cache: %w", err)
	}

	orders, err := decodeOrders(raw, s.zone, s.logger)
	if err != nil {
		s.logger.Printf("Raw orders cache written but not publishable: %v", err)
		return versioned{}, nil
	}
	s.logger.Printf("Orders cache overwritten with %d entries", len(orders))
	return s.stamp(orders), nil
}

// AnimationConfig returns the stored settings, with defaults for anything missing.
func (s *OrderService) AnimationConfig() model.AnimationConfig {
	cfg := model.DefaultAnimationConfig()
	if !s.cache.LoadInto(cache.KeyAnimationConfig, &cfg) {
		return model.DefaultAnimationConfig()
	}
	if err := s.validate.Struct(cfg); err != nil {
		s.logger.Printf("Stored animation config is invalid, using defaults: %v", err)
		return model.DefaultAnimationConfig()
	}
	return cfg
}

func (s *OrderService) SaveAnimationConfig(cfg model.AnimationConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return newValidationError(err)
	}
	unlock := s.cache.Lock(cache.KeyAnimationConfig)
	defer unlock()

	if err := s.cache.Save(cache.KeyAnimationConfig, cfg); err != nil {
		s.cacheWriteFailures.Add(1)
		return fmt.Errorf("save animation config: %w", err)
	}
	s.logger.Printf("Animation config saved: %+v", cfg)
	return nil
}
