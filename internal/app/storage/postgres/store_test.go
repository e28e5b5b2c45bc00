package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
)

var identityRowColumns = []string{
	"id", "kind", "name", "key", "expires_at",
	"telegram_user_id", "username", "first_name", "last_name", "language_code", "is_bot",
	"request_count", "max_requests", "status", "last_reset_at", "last_seen", "created_at",
}

func identityRow(id string, count, max int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(identityRowColumns).AddRow(
		id, "api_key", "test", "deadbeef", nil,
		nil, "", "", "", "", false,
		count, max, "active", now, now, now,
	)
}

func TestReplaceSnapshotUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(market.SourceTGJU, market.CategoryGold, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.ReplaceSnapshot(context.Background(), market.Snapshot{
		Source:      market.SourceTGJU,
		Category:    market.CategoryGold,
		Records:     []market.PriceRecord{{Title: "مثقال طلا", Price: "52600000"}},
		RetrievedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := New(db)

	records, _ := json.Marshal([]market.PriceRecord{{Title: "دلار", Price: "1065300"}})
	retrieved := time.Now().UTC()
	mock.ExpectQuery("SELECT records, retrieved_at").
		WithArgs(market.SourceTGJU, market.CategoryCurrency).
		WillReturnRows(sqlmock.NewRows([]string{"records", "retrieved_at"}).AddRow(records, retrieved))

	snap, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(snap.Records) != 1 || snap.Records[0].Title != "دلار" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	mock.ExpectQuery("SELECT records, retrieved_at").
		WithArgs(market.SourceCoinEx, market.CategoryCrypto).
		WillReturnRows(sqlmock.NewRows([]string{"records", "retrieved_at"}))

	_, err = store.GetSnapshot(context.Background(), market.Key{Source: market.SourceCoinEx, Category: market.CategoryCrypto})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestIncrementRequestCountGuarded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := New(db)

	const id = "11111111-1111-1111-1111-111111111111"

	// Below the ceiling: the guarded update hits one row.
	mock.ExpectExec("UPDATE identities").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT").
		WithArgs(id).
		WillReturnRows(identityRow(id, 3, 10))

	ident, err := store.IncrementRequestCount(context.Background(), id)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ident.RequestCount != 3 {
		t.Fatalf("unexpected count: %d", ident.RequestCount)
	}

	// At the ceiling: zero rows updated but the identity exists.
	mock.ExpectExec("UPDATE identities").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").
		WithArgs(id).
		WillReturnRows(identityRow(id, 10, 10))

	_, err = store.IncrementRequestCount(context.Background(), id)
	if !errors.Is(err, storage.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}

	// Unknown identity: zero rows updated and the lookup finds nothing.
	mock.ExpectExec("UPDATE identities").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(identityRowColumns))

	_, err = store.IncrementRequestCount(context.Background(), id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateIdentityMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := New(db)

	mock.ExpectExec("UPDATE identities").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = store.UpdateIdentity(context.Background(), identityFixture())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func identityFixture() identity.Identity {
	return identity.Identity{
		ID:          "22222222-2222-2222-2222-222222222222",
		Kind:        identity.KindAPIKey,
		MaxRequests: 10,
		Status:      identity.StatusActive,
	}
}
