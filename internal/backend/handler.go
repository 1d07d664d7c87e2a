package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/middleware"
)

// apiError is rendered as {"<field>": message}. Domain failures use
// "message"; framework and auth failures use "detail".
type apiError struct {
	status  int
	field   string
	message string
}

func (e *apiError) Error() string { return e.message }

func (e *apiError) StatusCode() int { return e.status }

func messageError(status int, msg string) error {
	return &apiError{status: status, field: "message", message: msg}
}

func detailError(status int, msg string) error {
	return &apiError{status: status, field: "detail", message: msg}
}

// Handler serves the wallet endpoints.
type Handler struct {
	accounts *Accounts
	tokens   *Tokens
	book     *Book
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler wires the services behind the HTTP endpoints. notifier may be nil.
func NewHandler(accounts *Accounts, tokens *Tokens, book *Book, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, tokens: tokens, book: book, notifier: notifier, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return detailError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return detailError(http.StatusBadRequest, "email and password are required")
	}
	account, err := h.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return detailError(http.StatusUnauthorized, "No active account found with the given credentials")
	}
	pair, err := h.tokens.Issue(account)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh rotates the pair for a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return detailError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.tokens.Refresh(c.UserContext(), req.Refresh)
	if err != nil {
		return detailError(http.StatusUnauthorized, "Token is invalid or expired")
	}
	return c.Status(http.StatusOK).JSON(pair)
}

// Logout revokes every token issued to the caller.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.accounts.Logout(c.UserContext(), middleware.AccountID(c)); err != nil {
		return detailError(http.StatusUnauthorized, err.Error())
	}
	return c.SendStatus(http.StatusResetContent)
}

type profileResponse struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	PhoneNumber  string  `json:"phone_number"`
	DateOfBirth  *string `json:"date_of_birth"`
	IDNumberType string  `json:"id_number_type"`
	IDNumber     *string `json:"id_number"`
	WalletID     string  `json:"wallet_id"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	account, err := h.current(c)
	if err != nil {
		return err
	}
	return c.JSON(profileResponse{
		Username:     account.Username,
		Email:        account.Email,
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		PhoneNumber:  account.PhoneNumber,
		DateOfBirth:  optional(account.DateOfBirth),
		IDNumberType: account.IDNumberType,
		IDNumber:     optional(account.IDNumber),
		WalletID:     account.WalletID,
	})
}

// Balance returns {"wallet balance": <number>} with two decimals.
func (h *Handler) Balance(c *fiber.Ctx) error {
	account, err := h.current(c)
	if err != nil {
		return err
	}
	balance, err := h.book.Balance(account.WalletID)
	if err != nil {
		return messageError(http.StatusNotFound, "Wallet not found")
	}
	return c.JSON(map[string]json.Number{"wallet balance": json.Number(balance.StringFixed(2))})
}

type entryResponse struct {
	TransactionID string      `json:"transaction_id"`
	Wallet        json.Number `json:"wallet"`
	Amount        string      `json:"amount"`
	EntryType     string      `json:"entry_type"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Ledger lists the caller's postings, newest first.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	account, err := h.current(c)
	if err != nil {
		return err
	}
	postings, err := h.book.Entries(account.WalletID)
	if err != nil {
		return messageError(http.StatusNotFound, "Wallet not found")
	}
	out := make([]entryResponse, 0, len(postings))
	for _, p := range postings {
		out = append(out, entryResponse{
			TransactionID: p.TransactionID,
			Wallet:        json.Number(p.WalletID),
			Amount:        p.Amount.StringFixed(2),
			EntryType:     p.EntryType,
			CreatedAt:     p.CreatedAt,
		})
	}
	return c.JSON(out)
}

type transferRequest struct {
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Transfer moves money from the caller to receiver_id. A repeated
// idempotency key returns the original outcome without moving money again.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	sender, err := h.current(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return messageError(http.StatusBadRequest, "Invalid transfer payload")
	}
	key, err := middleware.IdempotencyKey(c)
	if err != nil {
		return messageError(http.StatusBadRequest, err.Error())
	}
	receiver, err := h.accounts.Receiver(c.UserContext(), req.ReceiverID)
	if err != nil {
		return messageError(http.StatusBadRequest, "Receiver wallet not found")
	}

	res, replayed, err := h.book.Transfer(sender.WalletID, receiver.WalletID, key, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			return messageError(http.StatusBadRequest, "Insufficient funds")
		case errors.Is(err, ErrInvalidAmount):
			return messageError(http.StatusBadRequest, "Amount must be greater than zero")
		case errors.Is(err, ErrSelfTransfer):
			return messageError(http.StatusBadRequest, "Cannot transfer to your own wallet")
		case errors.Is(err, ErrIdempotencyConflict):
			return messageError(http.StatusUnprocessableEntity, "Idempotency key already used for a different transfer")
		case errors.Is(err, ErrUnknownWallet):
			return messageError(http.StatusNotFound, "Wallet not found")
		default:
			return err
		}
	}
	if replayed {
		c.Set("Idempotent-Replayed", "true")
	} else {
		h.logger.Info("transfer applied",
			slog.String("transaction_id", res.TransactionID),
			slog.String("from_wallet", sender.WalletID),
			slog.String("to_wallet", receiver.WalletID),
			slog.String("amount", req.Amount.String()),
		)
		notifyTransfer(c.UserContext(), h.notifier, h.logger, sender, receiver, req.Amount, res)
	}
	return c.Status(http.StatusCreated).JSON(transferResponse{TransactionID: res.TransactionID, Status: res.Status})
}

func (h *Handler) current(c *fiber.Ctx) (Account, error) {
	account, err := h.accounts.Get(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return Account{}, detailError(http.StatusUnauthorized, "User not found")
	}
	return account, nil
}
