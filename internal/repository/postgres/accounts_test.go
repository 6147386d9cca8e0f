package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

func sampleAccount(t *testing.T) *domain.Account {
	t.Helper()

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Account{
		ID:                uuid.New(),
		Tenant:            "default",
		Username:          "alice@example.com",
		Email:             "alice@example.com",
		NameID:            uuid.New(),
		Created:           now,
		LastUpdated:       now,
		HashedPassword:    "5000.abcdef",
		PasswordChanged:   now,
		IsLoginAllowed:    true,
		TwoFactorAuthMode: domain.TwoFactorAuthModeNone,
		Version:           1,
	}
}

func TestAccountRepositoryAdd(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	account := sampleAccount(t)
	account.Claims = []domain.Claim{{Type: "role", Value: "member"}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts\.accounts`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO accounts\.account_claims`).
		WithArgs(account.ID, "role", "member").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewAccountRepository(mock)
	if err := repo.Add(context.Background(), account); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryAddDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	account := sampleAccount(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts\.accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	repo := NewAccountRepository(mock)
	if err := repo.Add(context.Background(), account); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryUpdateStaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	account := sampleAccount(t)
	account.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts\.accounts`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	repo := NewAccountRepository(mock)
	if err := repo.Update(context.Background(), account); !errors.Is(err, repository.ErrConcurrency) {
		t.Fatalf("expected ErrConcurrency, got %v", err)
	}
	if account.Version != 3 {
		t.Errorf("version must not advance on a stale update, got %d", account.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryUpdateAdvancesVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	account := sampleAccount(t)
	account.Version = 3

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts\.accounts`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM accounts\.account_claims`).
		WithArgs(account.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM accounts\.linked_accounts`).
		WithArgs(account.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM accounts\.account_certificates`).
		WithArgs(account.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM accounts\.two_factor_tokens`).
		WithArgs(account.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM accounts\.password_reset_secrets`).
		WithArgs(account.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	repo := NewAccountRepository(mock)
	if err := repo.Update(context.Background(), account); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if account.Version != 4 {
		t.Errorf("expected version 4 after update, got %d", account.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryRemoveNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM accounts\.accounts`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewAccountRepository(mock)
	if err := repo.Remove(context.Background(), id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM accounts\.accounts`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	repo := NewAccountRepository(mock)
	if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryGetByUsername(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	account := sampleAccount(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts\.accounts`).
		WithArgs(account.Tenant, account.Username).
		WillReturnRows(pgxmock.NewRows(accountColumns).AddRow(
			account.ID.String(), account.Tenant, account.Username, account.Email, account.NameID.String(),
			account.Created, account.LastUpdated,
			account.HashedPassword, account.PasswordChanged,
			false, "", nil,
			"", "",
			true, false, nil,
			nil, nil, 0,
			"", "", "",
			nil, string(domain.TwoFactorAuthModeNone),
			int64(1),
		))
	mock.ExpectQuery(`SELECT type, value FROM accounts\.account_claims`).
		WithArgs(account.ID).
		WillReturnRows(pgxmock.NewRows([]string{"type", "value"}).
			AddRow("role", "member"))
	mock.ExpectQuery(`SELECT .+ FROM accounts\.linked_accounts`).
		WithArgs(account.ID).
		WillReturnRows(pgxmock.NewRows([]string{"provider_name", "provider_account_id", "last_login", "claims"}))
	mock.ExpectQuery(`SELECT thumbprint, subject FROM accounts\.account_certificates`).
		WithArgs(account.ID).
		WillReturnRows(pgxmock.NewRows([]string{"thumbprint", "subject"}))
	mock.ExpectQuery(`SELECT token, issued FROM accounts\.two_factor_tokens`).
		WithArgs(account.ID).
		WillReturnRows(pgxmock.NewRows([]string{"token", "issued"}))
	mock.ExpectQuery(`SELECT id, question, answer FROM accounts\.password_reset_secrets`).
		WithArgs(account.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "question", "answer"}))

	repo := NewAccountRepository(mock)
	got, err := repo.GetByUsername(context.Background(), account.Tenant, account.Username)
	if err != nil {
		t.Fatalf("GetByUsername returned error: %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("expected id %s, got %s", account.ID, got.ID)
	}
	if got.Username != account.Username {
		t.Errorf("expected username %q, got %q", account.Username, got.Username)
	}
	if len(got.Claims) != 1 || got.Claims[0].Value != "member" {
		t.Errorf("expected the member claim to load, got %+v", got.Claims)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAccountRepositoryGetByVerificationKeyEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)
	if _, err := repo.GetByVerificationKey(context.Background(), ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty key, got %v", err)
	}
}
