package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/tenantdesk/internal/port/cache"
)

type mapCache map[string][]byte

func (m mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m[key] = value
	return nil
}

func (m mapCache) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type item struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := mapCache{}

	if err := cache.SetJSON(ctx, c, "k", item{ID: "a", Size: 3}, time.Minute); err != nil {
		t.Fatal(err)
	}

	var got item
	found, err := cache.GetJSON(ctx, c, "k", &got)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.ID != "a" || got.Size != 3 {
		t.Fatalf("unexpected result found=%v got=%+v", found, got)
	}
}

func TestGetJSONMiss(t *testing.T) {
	var got item
	found, err := cache.GetJSON(context.Background(), mapCache{}, "missing", &got)
	if err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
}

func TestGetJSONCorrupt(t *testing.T) {
	c := mapCache{"k": []byte("{not json")}
	var got item
	found, err := cache.GetJSON(context.Background(), c, "k", &got)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if found {
		t.Fatal("corrupt value must not be reported as found")
	}
}
