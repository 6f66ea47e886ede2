package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"continuouscare/internal/models"
)

// ErrDuplicateUser is returned when a username is already taken.
var ErrDuplicateUser = errors.New("username already exists")

// ErrInvalidCredentials is returned by VerifyUser on a bad username or
// password.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// RegisterUser creates a client or medic account with a bcrypt-hashed
// password.
func (d *DB) RegisterUser(ctx context.Context, p models.Profile, password string) error {
	var exists bool
	err := d.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, p.Username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check username %s: %w", p.Username, err)
	}
	if exists {
		return ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
        INSERT INTO users (
            username, role, password_hash, name, email, health_number,
            birth_date, weight, height, diseases, company, specialities
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = d.Pool.Exec(ctx, query,
		p.Username, p.Role, hash, p.Name, p.Email, p.HealthNumber,
		p.BirthDate, p.Weight, p.Height, p.Diseases, p.Company, p.Specialities)
	if err != nil {
		return fmt.Errorf("failed to register user %s: %w", p.Username, err)
	}
	return nil
}

// VerifyUser checks credentials and returns the user's role.
func (d *DB) VerifyUser(ctx context.Context, username, password string) (models.Role, error) {
	var role models.Role
	var hash []byte
	err := d.Pool.QueryRow(ctx,
		`SELECT role, password_hash FROM users WHERE username = $1`, username).
		Scan(&role, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to verify user %s: %w", username, err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return role, nil
}

// ListUsers returns the usernames of all registered clients. Used at
// startup to spin up one aggregation loop per user.
func (d *DB) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := d.Pool.Query(ctx,
		`SELECT username FROM users WHERE role = $1 ORDER BY username`, models.RoleClient)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetProfile loads the profile of one user.
func (d *DB) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	var p models.Profile
	query := `
        SELECT username, role, name, email, health_number, birth_date,
               weight, height, diseases, company, specialities
        FROM users WHERE username = $1`
	err := d.Pool.QueryRow(ctx, query, username).Scan(
		&p.Username, &p.Role, &p.Name, &p.Email, &p.HealthNumber, &p.BirthDate,
		&p.Weight, &p.Height, &p.Diseases, &p.Company, &p.Specialities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, fmt.Errorf("no profile for user %s", username)
		}
		return models.Profile{}, fmt.Errorf("failed to get profile of %s: %w", username, err)
	}
	return p, nil
}

// UpdateProfile overwrites the editable profile fields. A non-empty
// password is re-hashed.
func (d *DB) UpdateProfile(ctx context.Context, p models.Profile, password string) error {
	query := `
        UPDATE users
        SET name = $2, email = $3, health_number = $4, birth_date = $5,
            weight = $6, height = $7, diseases = $8, company = $9, specialities = $10
        WHERE username = $1`
	tag, err := d.Pool.Exec(ctx, query,
		p.Username, p.Name, p.Email, p.HealthNumber, p.BirthDate,
		p.Weight, p.Height, p.Diseases, p.Company, p.Specialities)
	if err != nil {
		return fmt.Errorf("failed to update profile of %s: %w", p.Username, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no profile updated for user %s", p.Username)
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if _, err := d.Pool.Exec(ctx,
			`UPDATE users SET password_hash = $2 WHERE username = $1`, p.Username, hash); err != nil {
			return fmt.Errorf("failed to update password of %s: %w", p.Username, err)
		}
	}
	return nil
}

// DeleteProfile removes a user and everything hanging off the account.
func (d *DB) DeleteProfile(ctx context.Context, username string) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete profile of %s: %w", username, err)
	}
	return nil
}
