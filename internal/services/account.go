package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dimitrije/starter-api/internal/database"
	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, subject_id, provider, provider_id, email, email_verified, name, picture, password_hash, created_at, updated_at`

// PasswordResetTTL is how long an emailed reset link stays valid.
const PasswordResetTTL = time.Hour

type AccountService struct {
	db        *database.DB
	passwords *PasswordService
}

func NewAccountService(db *database.DB, passwords *PasswordService) *AccountService {
	return &AccountService{db: db, passwords: passwords}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.SubjectID, &a.Provider, &a.ProviderID, &a.Email, &a.EmailVerified,
		&a.Name, &a.Picture, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

// SignUp creates a password account. The subject id uses the same
// provider-prefixed shape as social accounts.
func (s *AccountService) SignUp(ctx context.Context, email, password, name string) (*models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	providerID := uuid.New().String()
	subjectID, err := session.SubjectID(session.ProviderPassword, providerID)
	if err != nil {
		return nil, err
	}

	account, err := scanAccount(s.db.Pool.QueryRow(ctx, `
		INSERT INTO accounts (subject_id, provider, provider_id, email, name, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+accountColumns,
		subjectID, session.ProviderPassword.String(), providerID, email, name, hash))
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// Authenticate checks a password login. Unknown emails and wrong passwords
// produce the same error.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := scanAccount(s.db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE provider = $1 AND LOWER(email) = LOWER($2)
	`, session.ProviderPassword.String(), strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if account.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.passwords.Verify(*account.PasswordHash, password); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.Account, error) {
	provider := info.Provider.String()

	account, err := scanAccount(s.db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE provider = $1 AND provider_id = $2
	`, provider, info.ID))

	if err == nil {
		if account.Email != info.Email || account.Name != info.Name || account.EmailVerified != info.EmailVerified ||
			(account.Picture == nil && info.AvatarURL != "") {
			_, _ = s.db.Pool.Exec(ctx, `
				UPDATE accounts SET email = $1, email_verified = $2, name = $3, picture = COALESCE($4, picture), updated_at = NOW()
				WHERE id = $5
			`, info.Email, info.EmailVerified, info.Name, nullableString(info.AvatarURL), account.ID)
			account.Email = info.Email
			account.EmailVerified = info.EmailVerified
			account.Name = info.Name
			if info.AvatarURL != "" {
				account.Picture = &info.AvatarURL
			}
		}
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	subjectID, err := session.SubjectID(info.Provider, info.ID)
	if err != nil {
		return nil, err
	}

	account, err = scanAccount(s.db.Pool.QueryRow(ctx, `
		INSERT INTO accounts (subject_id, provider, provider_id, email, email_verified, name, picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+accountColumns,
		subjectID, provider, info.ID, info.Email, info.EmailVerified,
		info.Name, nullableString(info.AvatarURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(s.db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
}

func (s *AccountService) GetBySubject(ctx context.Context, subjectID string) (*models.Account, error) {
	return scanAccount(s.db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE subject_id = $1
	`, subjectID))
}

// ChangePassword sets a new password for an authenticated password
// account. Social accounts have no password to change.
func (s *AccountService) ChangePassword(ctx context.Context, id uuid.UUID, password string) error {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if account.PasswordHash == nil {
		return ErrSocialAccount
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}

	_, err = s.db.Pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, hash, id)
	return err
}

// UpdateEmail changes the login email. The new address is unverified until
// confirmed again.
func (s *AccountService) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	account, err := scanAccount(s.db.Pool.QueryRow(ctx, `
		UPDATE accounts SET email = $1, email_verified = FALSE, updated_at = NOW()
		WHERE id = $2
		RETURNING `+accountColumns,
		email, id))
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	return account, err
}

// UpdateProfile sets name and picture; nil leaves a field unchanged.
func (s *AccountService) UpdateProfile(ctx context.Context, id uuid.UUID, name, picture *string) (*models.Account, error) {
	return scanAccount(s.db.Pool.QueryRow(ctx, `
		UPDATE accounts SET name = COALESCE($1, name), picture = COALESCE($2, picture), updated_at = NOW()
		WHERE id = $3
		RETURNING `+accountColumns,
		name, picture, id))
}

// CreatePasswordReset stores a reset token for a password account and
// returns the raw token. It returns ErrNotFound for unknown emails and
// social accounts so the caller can stay silent about either.
func (s *AccountService) CreatePasswordReset(ctx context.Context, email string) (*models.Account, string, error) {
	account, err := scanAccount(s.db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE provider = $1 AND LOWER(email) = LOWER($2)
	`, session.ProviderPassword.String(), strings.TrimSpace(email)))
	if err != nil {
		return nil, "", err
	}

	token, err := oauth.GenerateState()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	if _, err := s.db.Pool.Exec(ctx, `
		INSERT INTO password_resets (token_hash, account_id, expires_at)
		VALUES ($1, $2, $3)
	`, HashToken(token), account.ID, time.Now().Add(PasswordResetTTL)); err != nil {
		return nil, "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return account, token, nil
}

// ResetPassword redeems a reset token once, sets the new password and
// signs the account out everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM password_resets
		WHERE token_hash = $1 AND expires_at > NOW()
		RETURNING account_id
	`, HashToken(token)).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to redeem reset token: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, hash, accountID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *AccountService) CleanupExpiredResets(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
