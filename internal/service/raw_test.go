package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"lobby/internal/cache"
	"lobby/internal/model"
)

func TestOverwriteRawOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := json.RawMessage(`[{"id":5,"customerName":"Dani","status":"READY","createdAt":"2026-10-15T09:00:00Z","updatedAt":"2026-10-15T09:00:00Z"}]`)
	if err := f.svc.OverwriteRawOrders(ctx, raw); err != nil {
		t.Fatalf("OverwriteRawOrders failed: %v", err)
	}

	list, err := f.svc.ListOrders(ctx)
	if err != nil || len(list) != 1 || list[0].ID != 5 {
		t.Errorf("Unexpected list %+v (%v)", list, err)
	}
	if last := f.pub.last(); len(last) != 1 || last[0].CustomerName != "Dani" {
		t.Errorf("Expected overwrite to be published, got %+v", last)
	}

	got, ok := f.svc.RawOrders()
	if !ok {
		t.Fatal("Expected raw cache")
	}
	var back []map[string]any
	if err := json.Unmarshal(got, &back); err != nil || len(back) != 1 {
		t.Errorf("Raw cache not stored as sent: %s", got)
	}
}

func TestOverwriteRawOrders_NonListIsStoredNotPublished(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.OverwriteRawOrders(context.Background(), json.RawMessage(`{"note":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if !f.cache.Exists(cache.KeyOrders) {
		t.Error("Expected raw value to be written")
	}
	if f.pub.calls() != 0 {
		t.Error("Non-list content must not be published")
	}
}

func TestOverwriteRawOrders_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.OverwriteRawOrders(context.Background(), json.RawMessage(`[{`)); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestOverwriteRawOrders_EmptyListDoesNotCreateFile(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.OverwriteRawOrders(context.Background(), json.RawMessage(`[]`)); err != nil {
		t.Fatal(err)
	}
	if f.cache.Exists(cache.KeyOrders) {
		t.Error("Empty overwrite must not create the cache file")
	}
}

func TestAnimationConfig(t *testing.T) {
	f := newFixture(t)

	if got := f.svc.AnimationConfig(); got != model.DefaultAnimationConfig() {
		t.Errorf("Expected defaults, got %+v", got)
	}

	want := model.AnimationConfig{AnimationEnabled: false, IntervalSeconds: 45, DurationSeconds: 3}
	if err := f.svc.SaveAnimationConfig(want); err != nil {
		t.Fatalf("SaveAnimationConfig failed: %v", err)
	}
	if got := f.svc.AnimationConfig(); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	err := f.svc.SaveAnimationConfig(model.AnimationConfig{IntervalSeconds: 0, DurationSeconds: 3})
	if !IsValidation(err) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}
