package store

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Token format: TokenPrefix + "-" + TokenLength characters from tokenAlphabet.
const (
	TokenPrefix = "bind"
	TokenLength = 8

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// PendingToken is a single-use code waiting to bind a chat to a student.
type PendingToken struct {
	Token     string
	StudentID string
	CreatedAt time.Time
}

// TokenRepository manages pending binding tokens.
type TokenRepository struct {
	db *sql.DB
}

// Tokens returns the token repository for this store.
func (s *Store) Tokens() *TokenRepository {
	return &TokenRepository{db: s.db}
}

// GenerateToken returns a fresh token using a cryptographically secure source.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return TokenPrefix + "-" + string(buf), nil
}

// Issue returns the pending token for studentID, creating one if none exists.
func (r *TokenRepository) Issue(studentID string) (string, error) {
	studentID = NormalizeStudentID(studentID)
	if studentID == "" {
		return "", errors.New("student id is empty")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(
		`SELECT token FROM pending_tokens WHERE student_id = ? ORDER BY rowid LIMIT 1`,
		studentID,
	).Scan(&existing)
	switch {
	case err == nil:
		return existing, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return "", err
	}

	for attempt := 0; attempt < 5; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return "", err
		}

		result, err := tx.Exec(
			`INSERT OR IGNORE INTO pending_tokens (token, student_id, created_at) VALUES (?, ?, ?)`,
			token, studentID, time.Now(),
		)
		if err != nil {
			return "", err
		}
		if n, err := result.RowsAffected(); err != nil {
			return "", err
		} else if n == 0 {
			continue // collision with another student's token
		}

		if err := tx.Commit(); err != nil {
			return "", err
		}
		return token, nil
	}

	return "", errors.New("could not allocate a unique token")
}

// Consume atomically removes token and binds its student to chatID.
// Returns ErrNotFound, with nothing changed, when the token is unknown.
func (r *TokenRepository) Consume(token string, chatID int64) (studentID string, err error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	err = tx.QueryRow(`SELECT student_id FROM pending_tokens WHERE token = ?`, token).Scan(&studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	if _, err := tx.Exec(`DELETE FROM pending_tokens WHERE token = ?`, token); err != nil {
		return "", err
	}
	if _, err := bind(tx, studentID, chatID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return studentID, nil
}

// Get returns the pending token record for token.
func (r *TokenRepository) Get(token string) (*PendingToken, error) {
	t := &PendingToken{}
	err := r.db.QueryRow(
		`SELECT token, student_id, created_at FROM pending_tokens WHERE token = ?`,
		token,
	).Scan(&t.Token, &t.StudentID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// List returns all pending tokens in issue order.
func (r *TokenRepository) List() ([]*PendingToken, error) {
	rows, err := r.db.Query(
		`SELECT token, student_id, created_at FROM pending_tokens ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*PendingToken
	for rows.Next() {
		t := &PendingToken{}
		if err := rows.Scan(&t.Token, &t.StudentID, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}
