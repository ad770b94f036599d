package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/judged/internal/db"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrUsernameTaken  = errors.New("username already exists")
)

const (
	RoleJudge = "judge"
	RoleAdmin = "admin"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	JudgeID  string `json:"judge_id,omitempty"`
}

// UserStore checks logins against the users table. The configured admin
// account is accepted without a row.
type UserStore struct {
	db            *sql.DB
	adminUser     string
	adminPassHash string
}

func NewUserStore(db *sql.DB, adminUser, adminPassHash string) *UserStore {
	return &UserStore{db: db, adminUser: adminUser, adminPassHash: adminPassHash}
}

func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, ErrBadCredentials
	}
	if s.adminUser != "" && username == s.adminUser && s.adminPassHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(s.adminPassHash), []byte(password)) == nil {
			return User{ID: username, Username: username, Role: RoleAdmin}, nil
		}
	}

	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, judge_id, password_hash FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.Role, &u.JudgeID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// Create stores a user with a bcrypt hash of password.
func (s *UserStore) Create(ctx context.Context, username, password, role, judgeID string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleJudge && role != RoleAdmin {
		return User{}, errors.New("invalid role: " + role)
	}
	if role == RoleJudge && judgeID == "" {
		return User{}, errors.New("judge users need a judge id")
	}
	if username == "" || password == "" {
		return User{}, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Username: username, Role: role, JudgeID: judgeID}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, judge_id, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, string(hash), u.Role, u.JudgeID, time.Now().Unix())
	if db.IsUniqueViolation(err) {
		return User{}, ErrUsernameTaken
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

var ErrUserNotFound = errors.New("user not found")

// ChangePassword replaces the stored hash after checking the old password.
func (s *UserStore) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password required")
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), 12)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), userID); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// List returns users ordered by username, optionally filtered by role.
func (s *UserStore) List(ctx context.Context, role string) ([]User, error) {
	q := `SELECT id, username, role, judge_id FROM users`
	var args []any
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, role)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY username`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.JudgeID); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
