package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gofhir/sdcforms/model"
)

func TestMemoryStoreResolveCanonical(t *testing.T) {
	store := NewMemoryStore()
	store.MustAdd(`{
		"resourceType": "ValueSet",
		"id": "colors-1",
		"url": "http://example.org/ValueSet/colors",
		"version": "1.0.0",
		"status": "active",
		"meta": {"lastUpdated": "2025-01-01T00:00:00Z"}
	}`)
	store.MustAdd(`{
		"resourceType": "ValueSet",
		"id": "colors-2",
		"url": "http://example.org/ValueSet/colors",
		"version": "2.0.0",
		"status": "active",
		"meta": {"lastUpdated": "2026-01-01T00:00:00Z"}
	}`)
	store.MustAdd(`{
		"resourceType": "ValueSet",
		"id": "colors-3",
		"url": "http://example.org/ValueSet/colors",
		"version": "3.0.0-draft",
		"status": "draft",
		"meta": {"lastUpdated": "2026-06-01T00:00:00Z"}
	}`)

	ctx := context.Background()

	t.Run("versioned exact match", func(t *testing.T) {
		res, err := store.ResolveCanonical(ctx, model.KindValueSet, "http://example.org/ValueSet/colors|1.0.0")
		if err != nil {
			t.Fatalf("ResolveCanonical() error = %v", err)
		}
		if res.ID != "colors-1" {
			t.Errorf("ID = %q; want colors-1", res.ID)
		}
	})

	t.Run("versioned miss", func(t *testing.T) {
		_, err := store.ResolveCanonical(ctx, model.KindValueSet, "http://example.org/ValueSet/colors|9.9.9")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v; want ErrNotFound", err)
		}
	})

	t.Run("unversioned picks latest active not draft", func(t *testing.T) {
		res, err := store.ResolveCanonical(ctx, model.KindValueSet, "http://example.org/ValueSet/colors")
		if err != nil {
			t.Fatalf("ResolveCanonical() error = %v", err)
		}
		// colors-3 is newer but draft; colors-2 is the latest active.
		if res.ID != "colors-2" {
			t.Errorf("ID = %q; want colors-2", res.ID)
		}
	})

	t.Run("unversioned with no active resource", func(t *testing.T) {
		store.MustAdd(`{
			"resourceType": "ValueSet",
			"id": "retired-only",
			"url": "http://example.org/ValueSet/retired",
			"status": "retired"
		}`)
		_, err := store.ResolveCanonical(ctx, model.KindValueSet, "http://example.org/ValueSet/retired")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v; want ErrNotFound (no fallback to inactive)", err)
		}
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := store.ResolveCanonical(ctx, model.KindCodeSystem, "http://example.org/ValueSet/colors|1.0.0")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v; want ErrNotFound", err)
		}
	})
}

func TestMemoryStoreGetResource(t *testing.T) {
	store := NewMemoryStore()
	store.MustAdd(`{"resourceType": "Questionnaire", "id": "q1", "status": "active"}`)

	ctx := context.Background()

	res, err := store.GetResource(ctx, model.KindQuestionnaire, "q1")
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if res.ID != "q1" {
		t.Errorf("ID = %q; want q1", res.ID)
	}

	if _, err := store.GetResource(ctx, model.KindQuestionnaire, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v; want ErrNotFound", err)
	}
}

func TestResolverChain(t *testing.T) {
	first := NewMemoryStore()
	second := NewMemoryStore()
	second.MustAdd(`{
		"resourceType": "Library",
		"id": "lib1",
		"url": "http://example.org/Library/calc",
		"status": "active"
	}`)

	chain := NewResolverChain(first, second)

	res, err := chain.ResolveCanonical(context.Background(), model.KindLibrary, "http://example.org/Library/calc")
	if err != nil {
		t.Fatalf("ResolveCanonical() error = %v", err)
	}
	if res.ID != "lib1" {
		t.Errorf("ID = %q; want lib1", res.ID)
	}

	_, err = chain.ResolveCanonical(context.Background(), model.KindLibrary, "http://example.org/Library/none")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v; want ErrNotFound", err)
	}
}
