package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"receiptvault/models"
	"receiptvault/pkg/blob"
)

// testBackends returns every backend the suite should run against. The
// local fallback always runs; Postgres is opt-in the same way the rest of
// the integration tests are: set DB_DSN_TEST=1 and SUPABASE_DB_URL.
// Every property must hold for every backend — that equivalence is the
// facade's core contract.
func testBackends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)
	backends := map[string]Store{"local": NewLocal(fs)}

	if os.Getenv("DB_DSN_TEST") == "1" {
		dsn := os.Getenv("SUPABASE_DB_URL")
		if dsn == "" {
			t.Fatal("DB_DSN_TEST=1 but SUPABASE_DB_URL is not set")
		}
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		require.NoError(t, err)
		pg := NewPostgres(gdb)
		require.NoError(t, pg.Migrate())
		backends["postgres"] = pg
	}
	return backends
}

func mustUser(t *testing.T, s Store, email, tier string) *models.UserProfile {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &models.UserProfile{
		Email:            email,
		PasswordHash:     []byte("x"),
		SubscriptionTier: tier,
	})
	require.NoError(t, err)
	return u
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, NewID()[:8])
}

func TestCreateReceiptAppearsOnceInList(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("list"), models.TierFree)

			created, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: "Acme"})
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)
			require.False(t, created.CreatedAt.IsZero())

			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			seen := 0
			for _, r := range receipts {
				if r.ID == created.ID {
					seen++
				}
			}
			require.Equal(t, 1, seen)
		})
	}
}

func TestFreeTierQuota(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("quota"), models.TierFree)

			for i := 0; i < FreeReceiptLimit; i++ {
				_, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: fmt.Sprintf("v%d", i)})
				require.NoError(t, err)
			}
			_, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: "one too many"})
			require.ErrorIs(t, err, ErrQuotaExceeded)

			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, receipts, FreeReceiptLimit)
		})
	}
}

func TestProTierUnlimited(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("pro"), models.TierPro)

			for i := 0; i < 50; i++ {
				_, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: fmt.Sprintf("v%d", i)})
				require.NoError(t, err)
			}
			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, receipts, 50)
		})
	}
}

func TestDeleteUserCascades(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := mustUser(t, s, uniqueEmail("cascade-a"), models.TierFree)
			b := mustUser(t, s, uniqueEmail("cascade-b"), models.TierFree)

			for i := 0; i < 3; i++ {
				_, err := AddReceipt(ctx, s, a.ID, &models.Receipt{Vendor: "a"})
				require.NoError(t, err)
			}
			for i := 0; i < 2; i++ {
				_, err := AddReceipt(ctx, s, b.ID, &models.Receipt{Vendor: "b"})
				require.NoError(t, err)
			}

			require.NoError(t, s.DeleteUser(ctx, a.ID))

			_, err := s.GetUser(ctx, a.ID)
			require.ErrorIs(t, err, ErrNotFound)

			gone, err := s.ListReceipts(ctx, a.ID)
			require.NoError(t, err)
			require.Empty(t, gone)

			left, err := s.ListReceipts(ctx, b.ID)
			require.NoError(t, err)
			require.Len(t, left, 2)
		})
	}
}

func TestUpdateReceiptNotFound(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("upd-miss"), models.TierFree)
			created, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: "keep"})
			require.NoError(t, err)

			vendor := "mutated"
			_, err = s.UpdateReceipt(ctx, NewID(), ReceiptUpdate{Vendor: &vendor})
			require.ErrorIs(t, err, ErrNotFound)

			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, receipts, 1)
			require.Equal(t, created.ID, receipts[0].ID)
			require.Equal(t, "keep", receipts[0].Vendor)
		})
	}
}

func TestReceiptFieldRoundTrip(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("roundtrip"), models.TierFree)

			created, err := AddReceipt(ctx, s, u.ID, &models.Receipt{
				Vendor:   "Acme",
				Date:     "2024-01-01",
				Amount:   models.CentsFromFloat(12.5),
				Currency: "USD",
				Category: "Office",
			})
			require.NoError(t, err)

			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, receipts, 1)
			got := receipts[0]
			require.Equal(t, created.ID, got.ID)
			require.Equal(t, "Acme", got.Vendor)
			require.Equal(t, "2024-01-01", got.Date)
			require.Equal(t, models.Cents(1250), got.Amount)
			require.Equal(t, "USD", got.Currency)
			require.Equal(t, "Office", got.Category)
			require.False(t, got.CreatedAt.IsZero())
		})
	}
}

func TestListReceiptsNewestFirst(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("order"), models.TierPro)

			var ids []string
			for i := 0; i < 6; i++ {
				r, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: fmt.Sprintf("v%d", i)})
				require.NoError(t, err)
				ids = append(ids, r.ID)
			}
			receipts, err := s.ListReceipts(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, receipts, len(ids))
			for i := 1; i < len(receipts); i++ {
				require.False(t, receipts[i-1].CreatedAt.Before(receipts[i].CreatedAt),
					"receipts out of order at %d", i)
			}
		})
	}
}

func TestCreateUserEmailConflict(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			email := uniqueEmail("conflict")
			mustUser(t, s, email, models.TierFree)

			_, err := s.CreateUser(ctx, &models.UserProfile{Email: email, PasswordHash: []byte("y")})
			require.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestGetUserByEmail(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			email := uniqueEmail("byemail")
			u := mustUser(t, s, email, models.TierFree)

			got, err := s.GetUserByEmail(ctx, email)
			require.NoError(t, err)
			require.Equal(t, u.ID, got.ID)

			_, err = s.GetUserByEmail(ctx, uniqueEmail("nobody"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCreateReceiptForMissingUser(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := AddReceipt(context.Background(), s, NewID(), &models.Receipt{Vendor: "orphan"})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateUserTier(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := mustUser(t, s, uniqueEmail("tier"), models.TierFree)

			pro := models.TierPro
			got, err := s.UpdateUser(ctx, u.ID, UserUpdate{SubscriptionTier: &pro})
			require.NoError(t, err)
			require.Equal(t, models.TierPro, got.SubscriptionTier)

			// quota no longer applies after the upgrade
			for i := 0; i < FreeReceiptLimit+1; i++ {
				_, err := AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: "any"})
				require.NoError(t, err)
			}
		})
	}
}

func TestDeleteReceiptNotFound(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.DeleteReceipt(context.Background(), NewID())
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// A failed receipt cascade must leave the user in place so the delete can
// be retried; it must never remove the user and orphan their receipts.
func TestDeleteUserFailedCascadeKeepsUser(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := blob.NewFileStore(dir)
	require.NoError(t, err)
	s := NewLocal(fs)

	u := mustUser(t, s, uniqueEmail("half-cascade"), models.TierFree)
	_, err = AddReceipt(ctx, s, u.ID, &models.Receipt{Vendor: "Acme"})
	require.NoError(t, err)

	// a directory squatting on the temp path makes the receipts save fail
	// while the users collection stays writable
	blocker := filepath.Join(dir, "receipts.json.tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))
	require.Error(t, s.DeleteUser(ctx, u.ID))
	require.NoError(t, os.Remove(blocker))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	receipts, err := s.ListReceipts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	// and the retry goes through once the disk cooperates
	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckQuota(t *testing.T) {
	free := &models.UserProfile{SubscriptionTier: models.TierFree}
	pro := &models.UserProfile{SubscriptionTier: models.TierPro}

	require.NoError(t, CheckQuota(free, FreeReceiptLimit-1))
	require.ErrorIs(t, CheckQuota(free, FreeReceiptLimit), ErrQuotaExceeded)
	require.ErrorIs(t, CheckQuota(free, FreeReceiptLimit+3), ErrQuotaExceeded)
	require.NoError(t, CheckQuota(pro, 1000))
}

func TestNotFoundIsNotUnavailable(t *testing.T) {
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetUser(context.Background(), NewID())
			require.ErrorIs(t, err, ErrNotFound)
			require.False(t, errors.Is(err, ErrUnavailable))
		})
	}
}
