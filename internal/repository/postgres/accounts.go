package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	uuid "github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

var accountColumns = []string{
	"id", "tenant", "username", "email", "name_id",
	"created", "last_updated",
	"hashed_password", "password_changed",
	"is_account_verified", "verification_key", "verification_key_sent",
	"verification_purpose", "pending_new_email",
	"is_login_allowed", "is_account_closed", "account_closed",
	"last_login", "last_failed_login", "failed_login_count",
	"mobile_phone_number", "pending_mobile_phone", "mobile_code",
	"mobile_code_sent", "two_factor_auth_mode",
	"version",
}

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRepository persists account aggregates in PostgreSQL. The account
// row carries the optimistic-concurrency version; claims, linked accounts,
// certificates, remembered-device tokens and reset secrets live in child
// tables replaced wholesale on update.
type AccountRepository struct {
	exec pgExecutor
	sb   sq.StatementBuilderType
}

// NewAccountRepository constructs a repository over the provided executor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Add inserts the aggregate and its child rows. Unique violations on
// (tenant, username), (tenant, email) or the verification key surface as
// repository.ErrDuplicate.
func (r *AccountRepository) Add(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return errors.New("account is nil")
	}

	return r.withTx(ctx, func(exec pgExecutor) error {
		query, args, err := r.sb.
			Insert("accounts.accounts").
			Columns(accountColumns...).
			Values(
				account.ID, account.Tenant, account.Username, account.Email, account.NameID,
				account.Created, account.LastUpdated,
				account.HashedPassword, account.PasswordChanged,
				account.IsAccountVerified, account.VerificationKey, account.VerificationKeySent,
				string(account.VerificationPurpose), account.PendingNewEmail,
				account.IsLoginAllowed, account.IsAccountClosed, account.AccountClosed,
				account.LastLogin, account.LastFailedLogin, account.FailedLoginCount,
				account.MobilePhoneNumber, account.PendingMobilePhone, account.MobileCode,
				account.MobileCodeSent, string(account.TwoFactorAuthMode),
				account.Version,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert account query: %w", err)
		}

		if _, err := exec.Exec(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("insert account: %w", err)
		}

		return r.insertChildren(ctx, exec, account)
	})
}

// Update writes the aggregate guarded by its version. A zero-row update on an
// existing account means a concurrent writer won; the caller must reload.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return errors.New("account is nil")
	}

	return r.withTx(ctx, func(exec pgExecutor) error {
		query, args, err := r.sb.
			Update("accounts.accounts").
			SetMap(map[string]any{
				"username":              account.Username,
				"email":                 account.Email,
				"last_updated":          account.LastUpdated,
				"hashed_password":       account.HashedPassword,
				"password_changed":      account.PasswordChanged,
				"is_account_verified":   account.IsAccountVerified,
				"verification_key":      account.VerificationKey,
				"verification_key_sent": account.VerificationKeySent,
				"verification_purpose":  string(account.VerificationPurpose),
				"pending_new_email":     account.PendingNewEmail,
				"is_login_allowed":      account.IsLoginAllowed,
				"is_account_closed":     account.IsAccountClosed,
				"account_closed":        account.AccountClosed,
				"last_login":            account.LastLogin,
				"last_failed_login":     account.LastFailedLogin,
				"failed_login_count":    account.FailedLoginCount,
				"mobile_phone_number":   account.MobilePhoneNumber,
				"pending_mobile_phone":  account.PendingMobilePhone,
				"mobile_code":           account.MobileCode,
				"mobile_code_sent":      account.MobileCodeSent,
				"two_factor_auth_mode":  string(account.TwoFactorAuthMode),
				"version":               account.Version + 1,
			}).
			Where(sq.Eq{"id": account.ID, "version": account.Version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update account query: %w", err)
		}

		tag, err := exec.Exec(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("update account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrConcurrency
		}

		if err := r.deleteChildren(ctx, exec, account.ID); err != nil {
			return err
		}
		if err := r.insertChildren(ctx, exec, account); err != nil {
			return err
		}

		account.Version++
		return nil
	})
}

// Remove deletes the account; child rows cascade.
func (r *AccountRepository) Remove(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.sb.
		Delete("accounts.accounts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account query: %w", err)
	}

	tag, err := r.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID loads the aggregate by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetByUsername loads the aggregate by tenant-scoped username.
func (r *AccountRepository) GetByUsername(ctx context.Context, tenant, username string) (*domain.Account, error) {
	return r.getOne(ctx, sq.Eq{"tenant": tenant, "username": username})
}

// GetByEmail loads the aggregate by tenant-scoped email.
func (r *AccountRepository) GetByEmail(ctx context.Context, tenant, email string) (*domain.Account, error) {
	return r.getOne(ctx, sq.Eq{"tenant": tenant, "email": email})
}

// GetByVerificationKey loads the aggregate holding the outstanding key.
// Keys are globally unique so no tenant filter applies.
func (r *AccountRepository) GetByVerificationKey(ctx context.Context, key string) (*domain.Account, error) {
	if key == "" {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, sq.Eq{"verification_key": key})
}

// GetByLinkedAccount loads the aggregate bound to the external provider identity.
func (r *AccountRepository) GetByLinkedAccount(ctx context.Context, tenant, provider, providerAccountID string) (*domain.Account, error) {
	query, args, err := r.sb.
		Select("account_id").
		From("accounts.linked_accounts la").
		Join("accounts.accounts a ON a.id = la.account_id").
		Where(sq.Eq{"a.tenant": tenant, "la.provider_name": provider, "la.provider_account_id": providerAccountID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build linked account query: %w", err)
	}
	return r.getByChildRow(ctx, query, args)
}

// GetByCertificate loads the aggregate holding the certificate thumbprint.
func (r *AccountRepository) GetByCertificate(ctx context.Context, tenant, thumbprint string) (*domain.Account, error) {
	query, args, err := r.sb.
		Select("account_id").
		From("accounts.account_certificates c").
		Join("accounts.accounts a ON a.id = c.account_id").
		Where(sq.Eq{"a.tenant": tenant, "c.thumbprint": thumbprint}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build certificate query: %w", err)
	}
	return r.getByChildRow(ctx, query, args)
}

func (r *AccountRepository) getByChildRow(ctx context.Context, query string, args []any) (*domain.Account, error) {
	var id uuid.UUID
	if err := r.exec.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("query account id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) getOne(ctx context.Context, where sq.Eq) (*domain.Account, error) {
	query, args, err := r.sb.
		Select(accountColumns...).
		From("accounts.accounts").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account query: %w", err)
	}

	account, err := r.scanAccount(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account             domain.Account
		verificationPurpose string
		twoFactorMode       string
	)

	err := row.Scan(
		&account.ID, &account.Tenant, &account.Username, &account.Email, &account.NameID,
		&account.Created, &account.LastUpdated,
		&account.HashedPassword, &account.PasswordChanged,
		&account.IsAccountVerified, &account.VerificationKey, &account.VerificationKeySent,
		&verificationPurpose, &account.PendingNewEmail,
		&account.IsLoginAllowed, &account.IsAccountClosed, &account.AccountClosed,
		&account.LastLogin, &account.LastFailedLogin, &account.FailedLoginCount,
		&account.MobilePhoneNumber, &account.PendingMobilePhone, &account.MobileCode,
		&account.MobileCodeSent, &twoFactorMode,
		&account.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.VerificationPurpose = domain.VerificationPurpose(verificationPurpose)
	account.TwoFactorAuthMode = domain.TwoFactorAuthMode(twoFactorMode)
	return &account, nil
}

func (r *AccountRepository) loadChildren(ctx context.Context, account *domain.Account) error {
	if err := r.loadClaims(ctx, account); err != nil {
		return err
	}
	if err := r.loadLinkedAccounts(ctx, account); err != nil {
		return err
	}
	if err := r.loadCertificates(ctx, account); err != nil {
		return err
	}
	if err := r.loadTwoFactorTokens(ctx, account); err != nil {
		return err
	}
	return r.loadResetSecrets(ctx, account)
}

func (r *AccountRepository) loadClaims(ctx context.Context, account *domain.Account) error {
	query, args, err := r.sb.
		Select("type", "value").
		From("accounts.account_claims").
		Where(sq.Eq{"account_id": account.ID}).
		OrderBy("type", "value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select claims query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return fmt.Errorf("scan claim: %w", err)
		}
		account.Claims = append(account.Claims, c)
	}
	return rows.Err()
}

func (r *AccountRepository) loadLinkedAccounts(ctx context.Context, account *domain.Account) error {
	query, args, err := r.sb.
		Select("provider_name", "provider_account_id", "last_login", "claims").
		From("accounts.linked_accounts").
		Where(sq.Eq{"account_id": account.ID}).
		OrderBy("provider_name", "provider_account_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select linked accounts query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query linked accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			la     domain.LinkedAccount
			claims []byte
		)
		if err := rows.Scan(&la.ProviderName, &la.ProviderAccountID, &la.LastLogin, &claims); err != nil {
			return fmt.Errorf("scan linked account: %w", err)
		}
		if len(claims) > 0 {
			if err := json.Unmarshal(claims, &la.Claims); err != nil {
				return fmt.Errorf("decode linked account claims: %w", err)
			}
		}
		account.LinkedAccounts = append(account.LinkedAccounts, la)
	}
	return rows.Err()
}

func (r *AccountRepository) loadCertificates(ctx context.Context, account *domain.Account) error {
	query, args, err := r.sb.
		Select("thumbprint", "subject").
		From("accounts.account_certificates").
		Where(sq.Eq{"account_id": account.ID}).
		OrderBy("thumbprint").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select certificates query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Certificate
		if err := rows.Scan(&c.Thumbprint, &c.Subject); err != nil {
			return fmt.Errorf("scan certificate: %w", err)
		}
		account.Certificates = append(account.Certificates, c)
	}
	return rows.Err()
}

func (r *AccountRepository) loadTwoFactorTokens(ctx context.Context, account *domain.Account) error {
	query, args, err := r.sb.
		Select("token", "issued").
		From("accounts.two_factor_tokens").
		Where(sq.Eq{"account_id": account.ID}).
		OrderBy("issued").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select two factor tokens query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query two factor tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.TwoFactorAuthToken
		if err := rows.Scan(&t.Token, &t.Issued); err != nil {
			return fmt.Errorf("scan two factor token: %w", err)
		}
		account.TwoFactorAuthTokens = append(account.TwoFactorAuthTokens, t)
	}
	return rows.Err()
}

func (r *AccountRepository) loadResetSecrets(ctx context.Context, account *domain.Account) error {
	query, args, err := r.sb.
		Select("id", "question", "answer").
		From("accounts.password_reset_secrets").
		Where(sq.Eq{"account_id": account.ID}).
		OrderBy("question").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select reset secrets query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reset secrets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.PasswordResetSecret
		if err := rows.Scan(&s.ID, &s.Question, &s.Answer); err != nil {
			return fmt.Errorf("scan reset secret: %w", err)
		}
		account.PasswordResetSecrets = append(account.PasswordResetSecrets, s)
	}
	return rows.Err()
}

var childTables = []string{
	"accounts.account_claims",
	"accounts.linked_accounts",
	"accounts.account_certificates",
	"accounts.two_factor_tokens",
	"accounts.password_reset_secrets",
}

func (r *AccountRepository) deleteChildren(ctx context.Context, exec pgExecutor, id uuid.UUID) error {
	for _, table := range childTables {
		query, args, err := r.sb.
			Delete(table).
			Where(sq.Eq{"account_id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete query for %s: %w", table, err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func (r *AccountRepository) insertChildren(ctx context.Context, exec pgExecutor, account *domain.Account) error {
	for _, c := range account.Claims {
		query, args, err := r.sb.
			Insert("accounts.account_claims").
			Columns("account_id", "type", "value").
			Values(account.ID, c.Type, c.Value).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert claim query: %w", err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
	}

	for _, la := range account.LinkedAccounts {
		claims, err := json.Marshal(la.Claims)
		if err != nil {
			return fmt.Errorf("encode linked account claims: %w", err)
		}
		query, args, err := r.sb.
			Insert("accounts.linked_accounts").
			Columns("account_id", "provider_name", "provider_account_id", "last_login", "claims").
			Values(account.ID, la.ProviderName, la.ProviderAccountID, la.LastLogin, claims).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert linked account query: %w", err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert linked account: %w", err)
		}
	}

	for _, c := range account.Certificates {
		query, args, err := r.sb.
			Insert("accounts.account_certificates").
			Columns("account_id", "thumbprint", "subject").
			Values(account.ID, c.Thumbprint, c.Subject).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert certificate query: %w", err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert certificate: %w", err)
		}
	}

	for _, t := range account.TwoFactorAuthTokens {
		query, args, err := r.sb.
			Insert("accounts.two_factor_tokens").
			Columns("account_id", "token", "issued").
			Values(account.ID, t.Token, t.Issued).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert two factor token query: %w", err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert two factor token: %w", err)
		}
	}

	for _, s := range account.PasswordResetSecrets {
		query, args, err := r.sb.
			Insert("accounts.password_reset_secrets").
			Columns("account_id", "id", "question", "answer").
			Values(account.ID, s.ID, s.Question, s.Answer).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert reset secret query: %w", err)
		}
		if _, err := exec.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert reset secret: %w", err)
		}
	}

	return nil
}

// withTx runs fn inside a transaction when the executor can open one, which
// keeps account and child rows consistent. pgxmock-backed tests exercise the
// transactional path too since the mock pool implements Begin.
func (r *AccountRepository) withTx(ctx context.Context, fn func(exec pgExecutor) error) error {
	beginner, ok := r.exec.(pgBeginner)
	if !ok {
		return fn(r.exec)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
