package backend

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountExists rejects a second account with the same email.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound is returned by lookups that miss.
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a wallet owner known to the stub.
type Account struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PhoneNumber  string
	DateOfBirth  string
	IDNumberType string
	IDNumber     string
	WalletID     string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
}

// AccountRepository persists accounts.
type AccountRepository interface {
	// Create stores account and assigns a wallet id when it has none.
	Create(ctx context.Context, account Account) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByReceiver(ctx context.Context, receiver string) (Account, error)
	BumpTokenVersion(ctx context.Context, id string) error
}

type memoryAccounts struct {
	mu       sync.RWMutex
	byID     map[string]Account
	byEmail  map[string]string
	nextWall int
}

// NewMemoryAccounts builds an in-memory account store. Wallet ids are handed
// out sequentially starting at 1.
func NewMemoryAccounts() AccountRepository {
	return &memoryAccounts{byID: make(map[string]Account), byEmail: make(map[string]string)}
}

func (r *memoryAccounts) Create(_ context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(account.Email)
	if _, exists := r.byEmail[email]; exists {
		return Account{}, ErrAccountExists
	}
	if account.WalletID == "" {
		r.nextWall++
		account.WalletID = strconv.Itoa(r.nextWall)
	}
	r.byID[account.ID] = account
	r.byEmail[email] = account.ID
	return account, nil
}

func (r *memoryAccounts) FindByEmail(_ context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *memoryAccounts) FindByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// FindByReceiver resolves a transfer receiver given as wallet id, username
// or email.
func (r *memoryAccounts) FindByReceiver(_ context.Context, receiver string) (Account, error) {
	receiver = strings.TrimSpace(receiver)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.byID {
		if account.WalletID == receiver || account.Username == receiver || strings.EqualFold(account.Email, receiver) {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *memoryAccounts) BumpTokenVersion(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.TokenVersion++
	r.byID[id] = account
	return nil
}

// Signup is the data needed to open an account.
type Signup struct {
	Email       string
	Password    string
	Username    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// Accounts manages the account lifecycle.
type Accounts struct {
	repo AccountRepository
}

// NewAccounts wraps repo.
func NewAccounts(repo AccountRepository) *Accounts {
	return &Accounts{repo: repo}
}

// Register hashes the password and stores a new account with a fresh wallet id.
func (s *Accounts) Register(ctx context.Context, in Signup) (Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return Account{}, errors.New("email is required")
	}
	if len(in.Password) < 6 {
		return Account{}, errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	username := in.Username
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	account := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
		IDNumberType: "NIN",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	return s.repo.Create(ctx, account)
}

// Authenticate checks email and password.
func (s *Accounts) Authenticate(ctx context.Context, email, password string) (Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Get returns an account by id.
func (s *Accounts) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

// Receiver resolves a transfer receiver.
func (s *Accounts) Receiver(ctx context.Context, receiver string) (Account, error) {
	return s.repo.FindByReceiver(ctx, receiver)
}

// Logout invalidates every token issued so far for id.
func (s *Accounts) Logout(ctx context.Context, id string) error {
	return s.repo.BumpTokenVersion(ctx, id)
}
