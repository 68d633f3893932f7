/*
handlers.go - HTTP API handlers for the back-office ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to ledger.Ledger.

ENDPOINTS:
  Security (public):
    POST   /api/security/signup               Create customer + default account
    POST   /api/security/signin               Exchange credentials for a token
  Security:
    GET    /api/security/user                 Current customer
    PUT    /api/security/user                 Update profile
    POST   /api/security/refresh              New token for the current customer

  Accounts:
    GET    /api/accounts                      Paginated list, newest first
    POST   /api/accounts                      Open an account
    GET    /api/accounts/balance              Total balance of the customer
    GET    /api/accounts/{id}                 Owned account
    GET    /api/accounts/{id}/balance         Balance of an owned account
    GET    /api/accounts/{id}/exists          Whether any account has this id
    PATCH  /api/accounts/{id}/state           Activate / deactivate
    PATCH  /api/accounts/{id}/type            Change account type
    DELETE /api/accounts/{id}                 Close (zero balance only)
    GET    /api/accounts/{id}/deposits        Deposit history
    GET    /api/accounts/{id}/transfers       Transfer history (?direction=in|out|both)
    GET    /api/accounts/{id}/transactions    Combined history

  Money:
    GET    /api/deposits                      Deposit history of every account
    POST   /api/deposits                      Create deposit
    DELETE /api/deposits/{id}                 Delete (and reverse) deposit
    GET    /api/transfers                     Transfer history of every account
    POST   /api/transfers                     Create transfer
    DELETE /api/transfers/{id}                Delete (and reverse) transfer
    GET    /api/transactions                  Combined history of every account

HISTORY QUERY PARAMETERS:
  currentPage, range       Defaults 1 and 10
  dateInit, dateEnd        YYYY-MM-DD, RFC 3339 or epoch milliseconds

ERROR HANDLING:
  Errors are returned as JSON with the status of their ledger kind:
  - 400: Invalid input
  - 401: Missing token, or resource of another customer
  - 404: Unknown id
  - 409: Business rule violation
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/ledger"
)

// Handler holds all dependencies of the HTTP handlers.
type Handler struct {
	Ledger *ledger.Ledger
	Tokens *auth.Tokens
	Hasher auth.Hasher
	log    *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(l *ledger.Ledger, tokens *auth.Tokens, hasher auth.Hasher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Ledger: l, Tokens: tokens, Hasher: hasher, log: logger}
}

// =============================================================================
// SECURITY HANDLERS
// =============================================================================

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" || req.Document == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "email, document and fullName are required", nil)
		return
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid password", err)
		return
	}

	c, acct, err := h.Ledger.Register(r.Context(), ledger.NewCustomer{
		DocumentTypeID: ledger.DocumentTypeID(req.DocumentTypeID),
		Document:       req.Document,
		FullName:       req.FullName,
		Email:          req.Email,
		Phone:          req.Phone,
		PasswordHash:   hash,
		AvatarURL:      req.AvatarURL,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to sign up", err)
		return
	}

	token, exp, err := h.Tokens.Issue(c.ID)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to issue token", err)
		return
	}
	customer := toCustomerDTO(c)
	account, err := h.accountDTO(r, acct)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load account", err)
		return
	}
	writeJSON(w, http.StatusCreated, TokenResponse{Token: token, ExpiresAt: exp, Customer: &customer, Account: &account})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Ledger.CustomerByEmail(r.Context(), req.Email)
	if ledger.IsNotFound(err) {
		h.writeLedgerError(w, r, "Invalid credentials", auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		h.writeLedgerError(w, r, "Failed to sign in", err)
		return
	}
	if err := h.Hasher.Compare(c.PasswordHash, req.Password); err != nil || !c.Active {
		h.writeLedgerError(w, r, "Invalid credentials", auth.ErrInvalidCredentials)
		return
	}

	token, exp, err := h.Tokens.Issue(c.ID)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to issue token", err)
		return
	}
	customer := toCustomerDTO(c)
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp, Customer: &customer})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := customerID(r)
	if _, err := h.Ledger.Customer(r.Context(), id); err != nil {
		h.writeLedgerError(w, r, "Customer not found", err)
		return
	}
	token, exp, err := h.Tokens.Issue(id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	c, err := h.Ledger.Customer(r.Context(), customerID(r))
	if err != nil {
		h.writeLedgerError(w, r, "Customer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	upd := ledger.CustomerUpdate{
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	}
	if req.Password != nil {
		hash, err := h.Hasher.Hash(*req.Password)
		if err != nil {
			h.writeLedgerError(w, r, "Invalid password", err)
			return
		}
		upd.PasswordHash = &hash
	}

	c, err := h.Ledger.UpdateCustomer(r.Context(), customerID(r), upd)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return
	}
	page, err := h.Ledger.Accounts(r.Context(), customerID(r), req)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list accounts", err)
		return
	}

	var convErr error
	dto := toPageDTO(page, func(a ledger.Account) AccountDTO {
		d, err := h.accountDTO(r, a)
		if err != nil && convErr == nil {
			convErr = err
		}
		return d
	})
	if convErr != nil {
		h.writeLedgerError(w, r, "Failed to load account type", convErr)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	acct, err := h.Ledger.OpenAccount(r.Context(), customerID(r), ledger.AccountTypeID(req.AccountTypeID))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to open account", err)
		return
	}
	h.writeAccount(w, r, http.StatusCreated, acct)
}

func (h *Handler) TotalBalance(w http.ResponseWriter, r *http.Request) {
	total, err := h.Ledger.TotalBalance(r.Context(), customerID(r))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Balance: total})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Ledger.Account(r.Context(), customerID(r), accountParam(r))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get account", err)
		return
	}
	h.writeAccount(w, r, http.StatusOK, acct)
}

func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	id := accountParam(r)
	bal, err := h.Ledger.Balance(r.Context(), customerID(r), id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{AccountID: string(id), Balance: bal})
}

func (h *Handler) AccountExists(w http.ResponseWriter, r *http.Request) {
	id := accountParam(r)
	ok, err := h.Ledger.Exists(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to check account", err)
		return
	}
	writeJSON(w, http.StatusOK, ExistsDTO{ID: string(id), Exists: ok})
}

func (h *Handler) SetAccountState(w http.ResponseWriter, r *http.Request) {
	var req AccountStateRequest
	if err := decode(r, &req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "Body must be {\"active\": true|false}", err)
		return
	}
	acct, err := h.Ledger.SetAccountState(r.Context(), customerID(r), accountParam(r), *req.Active)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to change account state", err)
		return
	}
	h.writeAccount(w, r, http.StatusOK, acct)
}

func (h *Handler) ChangeAccountType(w http.ResponseWriter, r *http.Request) {
	var req AccountTypeRequest
	if err := decode(r, &req); err != nil || req.AccountTypeID == "" {
		writeError(w, http.StatusBadRequest, "accountTypeId is required", err)
		return
	}
	acct, err := h.Ledger.ChangeAccountType(r.Context(), customerID(r), accountParam(r), ledger.AccountTypeID(req.AccountTypeID))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to change account type", err)
		return
	}
	h.writeAccount(w, r, http.StatusOK, acct)
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id := accountParam(r)
	deleted, err := h.Ledger.CloseAccount(r.Context(), customerID(r), id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to close account", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseAccountResponse{ID: string(id), CustomerDeleted: deleted})
}

func (h *Handler) writeAccount(w http.ResponseWriter, r *http.Request, status int, acct ledger.Account) {
	dto, err := h.accountDTO(r, acct)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load account type", err)
		return
	}
	writeJSON(w, status, dto)
}

func (h *Handler) accountDTO(r *http.Request, a ledger.Account) (AccountDTO, error) {
	t, err := h.Ledger.AccountType(r.Context(), a.AccountTypeID)
	if err != nil {
		return AccountDTO{}, err
	}
	return AccountDTO{
		ID:          string(a.ID),
		CustomerID:  string(a.CustomerID),
		AccountType: AccountTypeDTO{ID: string(t.ID), Name: t.Name},
		Balance:     a.Balance,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
	}, nil
}

// =============================================================================
// DEPOSIT HANDLERS
// =============================================================================

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AccountID == "" || req.Amount == nil {
		writeError(w, http.StatusBadRequest, "accountId and amount are required", nil)
		return
	}
	dep, err := h.Ledger.CreateDeposit(r.Context(), customerID(r), ledger.AccountID(req.AccountID), *req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositDTO(dep))
}

func (h *Handler) DeleteDeposit(w http.ResponseWriter, r *http.Request) {
	id := ledger.DepositID(chi.URLParam(r, "id"))
	if err := h.Ledger.DeleteDeposit(r.Context(), customerID(r), id); err != nil {
		h.writeLedgerError(w, r, "Failed to delete deposit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	req, dr, ok := historyParams(w, r)
	if !ok {
		return
	}
	page, err := h.Ledger.Deposits(r.Context(), customerID(r), accountParam(r), req, dr)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page, toDepositDTO))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.IncomeID == "" || req.OutcomeID == "" || req.Amount == nil {
		writeError(w, http.StatusBadRequest, "incomeId, outcomeId and amount are required", nil)
		return
	}
	tr, err := h.Ledger.CreateTransfer(r.Context(), customerID(r), ledger.TransferRequest{
		IncomeID:  ledger.AccountID(req.IncomeID),
		OutcomeID: ledger.AccountID(req.OutcomeID),
		Amount:    *req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(tr))
}

func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransferID(chi.URLParam(r, "id"))
	if err := h.Ledger.DeleteTransfer(r.Context(), customerID(r), id); err != nil {
		h.writeLedgerError(w, r, "Failed to delete transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	req, dr, ok := historyParams(w, r)
	if !ok {
		return
	}
	dir, valid := ledger.ParseDirection(r.URL.Query().Get("direction"))
	if !valid {
		writeError(w, http.StatusBadRequest, "direction must be in, out or both", nil)
		return
	}
	page, err := h.Ledger.Transfers(r.Context(), customerID(r), accountParam(r), dir, req, dr)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page, toTransferEntryDTO))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	req, dr, ok := historyParams(w, r)
	if !ok {
		return
	}
	page, err := h.Ledger.Transactions(r.Context(), customerID(r), accountParam(r), req, dr)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page, toTransactionDTO))
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// customerID is set by Authenticate on every route that calls it.
func customerID(r *http.Request) ledger.CustomerID {
	id, _ := CustomerFrom(r.Context())
	return id
}

// accountParam is empty on customer-wide routes.
func accountParam(r *http.Request) ledger.AccountID {
	return ledger.AccountID(chi.URLParam(r, "id"))
}

func historyParams(w http.ResponseWriter, r *http.Request) (ledger.PageRequest, ledger.DateRange, bool) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return req, ledger.DateRange{}, false
	}
	dr, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return req, dr, false
	}
	return req, dr, true
}

func pageRequest(r *http.Request) (ledger.PageRequest, error) {
	var req ledger.PageRequest
	q := r.URL.Query()
	for name, dst := range map[string]*int{"currentPage": &req.CurrentPage, "range": &req.Range} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%s must be a positive integer", name)
		}
		*dst = n
	}
	return req, nil
}

func dateRange(r *http.Request) (ledger.DateRange, error) {
	var dr ledger.DateRange
	q := r.URL.Query()
	for name, dst := range map[string]**time.Time{"dateInit": &dr.From, "dateEnd": &dr.To} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			return dr, fmt.Errorf("%s: %w", name, err)
		}
		*dst = &t
	}
	return dr, nil
}

// parseTimeParam accepts YYYY-MM-DD, RFC 3339 or epoch milliseconds.
func parseTimeParam(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date", raw)
	}
	return t.UTC(), nil
}
