package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		subject_id VARCHAR(255) UNIQUE NOT NULL,
		provider VARCHAR(50) NOT NULL,
		provider_id VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		picture VARCHAR(500),
		password_hash VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE(provider, provider_id)
	)`,

	// Password accounts log in by email, so their emails must be unique.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_password_email
		ON accounts(LOWER(email)) WHERE provider = 'password'`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		token_hash VARCHAR(255) NOT NULL UNIQUE,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id)`,

	`CREATE TABLE IF NOT EXISTS user_records (
		subject_id VARCHAR(255) PRIMARY KEY REFERENCES accounts(subject_id) ON DELETE CASCADE ON UPDATE CASCADE,
		fields JSONB NOT NULL DEFAULT '{}',
		price_id VARCHAR(255),
		subscription_status VARCHAR(50),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_records_price_id ON user_records(price_id)`,

	`CREATE TABLE IF NOT EXISTS password_resets (
		token_hash VARCHAR(255) PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_password_resets_account_id ON password_resets(account_id)`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
