package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"brandotp/internal/app/storage/memory"
)

func TestCreateAndRead(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	u := store.AddUser("user@example.com", decimal.Zero)

	svc := NewMemory("secret", store.Users())

	token, err := svc.Create(ctx, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	got, err := svc.Read(ctx, token)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("user ID = %s, want %s", got.ID, u.ID)
	}
	if got.Email != u.Email {
		t.Errorf("email = %q, want %q", got.Email, u.Email)
	}
}

func TestReadGarbageToken(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewMemory("secret", store.Users())

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.Read(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Read(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestReadTokenSignedWithOtherKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	u := store.AddUser("user@example.com", decimal.Zero)

	other := NewMemory("other-secret", store.Users())
	token, err := other.Create(ctx, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc := NewMemory("secret", store.Users())
	if _, err := svc.Read(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestReadExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	u := store.AddUser("user@example.com", decimal.Zero)

	svc := NewMemory("secret", store.Users(), WithTokenLifetime(-time.Minute))

	token, err := svc.Create(ctx, u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Read(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
