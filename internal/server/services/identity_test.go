package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/server/auth"
	"github.com/yerakh/cloudvault/internal/server/models"
)

type fakeVerifier struct {
	out *auth.ExternalIdentity
	err error
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.ExternalIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func newTestIdentity(t *testing.T, db *sql.DB, rm *fakeRepoManager, mail *fakeMailer, v ExternalVerifier) *Identity {
	t.Helper()
	secret := []byte("test-secret")
	logger := newTestLogger()
	ledger := NewLedger(db, rm, secret, time.Hour, 24*time.Hour, mail, logger)
	return NewIdentity(db, rm, ledger, mail, v, secret, logger)
}

func TestIdentity_Register(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	mail := newFakeMailer()
	s := newTestIdentity(t, db, rm, mail, nil)

	user, err := s.Register(context.Background(), "new@example.com", "Ada", "Lovelace", "s3cret")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected created user with id")
	}

	if len(rm.v.created) != 1 {
		t.Fatalf("expected 1 stored verification token, got %d", len(rm.v.created))
	}
	if rm.v.created[0].UserID != user.ID {
		t.Errorf("verification token for %q, want %q", rm.v.created[0].UserID, user.ID)
	}
	if email := waitForMail(t, mail.verifications); email != "new@example.com" {
		t.Errorf("verification mail sent to %q", email)
	}
}

func TestIdentity_Register_DuplicateEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	users := newFakeUsersRepo()
	users.createErr = common.ErrorConflict
	rm := &fakeRepoManager{u: users, v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	_, err := s.Register(context.Background(), "taken@example.com", "A", "B", "pw")
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("expected ErrorConflict, got %v", err)
	}
}

// A failed verification-token insert must take the freshly created account
// down with it; without a resend path the account could never verify.
func TestIdentity_Register_TokenStoreFailureRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	vt := &fakeVerificationRepo{createErr: errors.New("insert failed")}
	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: vt, r: newMemRefreshRepo()}
	mail := newFakeMailer()
	s := newTestIdentity(t, db, rm, mail, nil)

	if _, err := s.Register(context.Background(), "lost@example.com", "A", "B", "pw"); err == nil {
		t.Fatalf("expected Register to fail")
	}
	select {
	case email := <-mail.verifications:
		t.Fatalf("no mail expected for a failed registration, sent to %q", email)
	default:
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentity_LoginWithPassword(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	user := &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: hash, IsActive: true, IsVerified: true}
	rm := &fakeRepoManager{u: newFakeUsersRepo(user), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	pair, got, err := s.LoginWithPassword(context.Background(), user.Email, "correct horse")
	if err != nil {
		t.Fatalf("LoginWithPassword error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if got.ID != user.ID {
		t.Errorf("logged in as %q, want %q", got.ID, user.ID)
	}
	if len(rm.u.lastLogin) != 1 || rm.u.lastLogin[0] != user.ID {
		t.Errorf("expected last login stamp for %q, got %v", user.ID, rm.u.lastLogin)
	}
}

func TestIdentity_LoginWithPassword_Rejections(t *testing.T) {
	hash, err := auth.HashPassword("right")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	tests := []struct {
		name     string
		user     *models.User
		email    string
		password string
		want     error
	}{
		{
			name:     "unknown email",
			user:     &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: hash, IsActive: true},
			email:    "other@example.com",
			password: "right",
			want:     common.ErrorUnauthorized,
		},
		{
			name:     "wrong password",
			user:     &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: hash, IsActive: true},
			email:    "u1@example.com",
			password: "wrong",
			want:     common.ErrorUnauthorized,
		},
		{
			name:     "oauth-only account",
			user:     &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: "", IsActive: true},
			email:    "u1@example.com",
			password: "anything",
			want:     common.ErrorUnauthorized,
		},
		{
			name:     "unverified account",
			user:     &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: hash, IsActive: true},
			email:    "u1@example.com",
			password: "right",
			want:     common.ErrorForbidden,
		},
		{
			name:     "deactivated account",
			user:     &models.User{ID: "u1", Email: "u1@example.com", PasswordHash: hash, IsActive: false, IsVerified: true},
			email:    "u1@example.com",
			password: "right",
			want:     common.ErrorForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := newSQLMockDB(t)
			defer db.Close()

			rm := &fakeRepoManager{u: newFakeUsersRepo(tt.user), r: newMemRefreshRepo()}
			s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

			_, _, err := s.LoginWithPassword(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestIdentity_LoginWithGoogle_NewUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	v := &fakeVerifier{out: &auth.ExternalIdentity{
		Email: "fresh@example.com", FirstName: "F", LastName: "L", ProviderID: "goog-1",
	}}
	rm := &fakeRepoManager{u: newFakeUsersRepo(), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), v)

	pair, user, err := s.LoginWithGoogle(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if pair.RefreshToken == "" {
		t.Fatalf("expected a session")
	}
	if !user.IsVerified {
		t.Errorf("externally asserted account must arrive verified")
	}
	if user.ProviderID != "goog-1" {
		t.Errorf("provider id %q, want goog-1", user.ProviderID)
	}
}

func TestIdentity_LoginWithGoogle_LinksExistingAccount(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	existing := &models.User{
		ID: "u1", Email: "known@example.com",
		AuthProvider: common.ProviderPassword, PasswordHash: "x", IsActive: true,
	}
	v := &fakeVerifier{out: &auth.ExternalIdentity{Email: existing.Email, ProviderID: "goog-9"}}
	rm := &fakeRepoManager{u: newFakeUsersRepo(existing), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), v)

	_, user, err := s.LoginWithGoogle(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if rm.u.linkedProvider != "goog-9" {
		t.Errorf("expected provider goog-9 linked, got %q", rm.u.linkedProvider)
	}
	if user.AuthProvider != common.ProviderPassword {
		t.Errorf("linking must not change the original auth provider")
	}
}

func TestIdentity_LoginWithGoogle_AlreadyLinked(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	existing := &models.User{
		ID: "u1", Email: "known@example.com",
		AuthProvider: common.ProviderGoogle, ProviderID: "goog-9", IsActive: true, IsVerified: true,
	}
	v := &fakeVerifier{out: &auth.ExternalIdentity{Email: existing.Email, ProviderID: "goog-9"}}
	rm := &fakeRepoManager{u: newFakeUsersRepo(existing), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), v)

	pair, _, err := s.LoginWithGoogle(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatalf("expected a session")
	}
	if rm.u.linkedProvider != "" {
		t.Errorf("no link call expected, got %q", rm.u.linkedProvider)
	}
}

func TestIdentity_LoginWithGoogle_BadAssertion(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	v := &fakeVerifier{err: common.ErrorUnauthorized}
	rm := &fakeRepoManager{u: newFakeUsersRepo(), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), v)

	_, _, err := s.LoginWithGoogle(context.Background(), "garbage")
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized, got %v", err)
	}
}

func TestIdentity_VerifyEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	user := &models.User{ID: "u1", Email: "u1@example.com", IsActive: true}
	rm := &fakeRepoManager{u: newFakeUsersRepo(user), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	token, err := auth.GenerateVerificationToken(user.ID, []byte("test-secret"))
	if err != nil {
		t.Fatalf("GenerateVerificationToken error: %v", err)
	}

	if err := s.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}
	if len(rm.u.verified) != 1 || rm.u.verified[0] != user.ID {
		t.Errorf("expected %q verified, got %v", user.ID, rm.u.verified)
	}
	if len(rm.v.deleted) != 1 || rm.v.deleted[0] != user.ID {
		t.Errorf("expected verification tokens of %q purged, got %v", user.ID, rm.v.deleted)
	}
}

func TestIdentity_VerifyEmail_WrongType(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	// An access token is well-formed but carries the wrong type claim.
	token, err := auth.GenerateAccessToken("u1", "u1@example.com", []byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}

	if err := s.VerifyEmail(context.Background(), token); !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestIdentity_VerifyEmail_Expired(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Type: auth.VerificationTokenType,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	if err := s.VerifyEmail(context.Background(), token); !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestIdentity_VerifyEmail_UnknownUser(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	token, err := auth.GenerateVerificationToken("ghost", []byte("test-secret"))
	if err != nil {
		t.Fatalf("GenerateVerificationToken error: %v", err)
	}

	if err := s.VerifyEmail(context.Background(), token); !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

// Full account lifecycle: register, verify, log in, rotate once, then replay
// the spent refresh token.
func TestIdentity_Lifecycle(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin() // register
	mock.ExpectCommit()
	mock.ExpectBegin() // verify email
	mock.ExpectCommit()
	mock.ExpectBegin() // first refresh
	mock.ExpectCommit()

	rm := &fakeRepoManager{u: newFakeUsersRepo(), v: &fakeVerificationRepo{}, r: newMemRefreshRepo()}
	mail := newFakeMailer()
	s := newTestIdentity(t, db, rm, mail, nil)

	if _, err := s.Register(context.Background(), "life@example.com", "A", "B", "pw"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	waitForMail(t, mail.verifications)

	if err := s.VerifyEmail(context.Background(), rm.v.created[0].Token); err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}

	pair, _, err := s.LoginWithPassword(context.Background(), "life@example.com", "pw")
	if err != nil {
		t.Fatalf("LoginWithPassword error: %v", err)
	}

	next, err := s.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation must mint a new token string")
	}

	// Replaying the spent token ends the session.
	_, err = s.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, common.ErrSecurityAlert) {
		t.Fatalf("expected ErrSecurityAlert, got %v", err)
	}
	if _, err := s.Refresh(context.Background(), next.RefreshToken); !errors.Is(err, common.ErrSecurityAlert) {
		t.Fatalf("successor must be dead after the alert, got %v", err)
	}
	waitForMail(t, mail.alerts)
}

func TestIdentity_CurrentUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	active := &models.User{ID: "u1", Email: "u1@example.com", IsActive: true}
	inactive := &models.User{ID: "u2", Email: "u2@example.com", IsActive: false}
	rm := &fakeRepoManager{u: newFakeUsersRepo(active, inactive), r: newMemRefreshRepo()}
	s := newTestIdentity(t, db, rm, newFakeMailer(), nil)

	if _, err := s.CurrentUser(context.Background(), "u1"); err != nil {
		t.Fatalf("CurrentUser(active) error: %v", err)
	}
	if _, err := s.CurrentUser(context.Background(), "u2"); !errors.Is(err, common.ErrorForbidden) {
		t.Fatalf("expected ErrorForbidden for deactivated user, got %v", err)
	}
	if _, err := s.CurrentUser(context.Background(), "missing"); !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized for unknown user, got %v", err)
	}
}
