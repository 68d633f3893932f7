/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Security:     SignupRequest, SigninRequest, UpdateProfileRequest, TokenResponse, CustomerDTO
  Accounts:     AccountDTO, OpenAccountRequest, AccountStateRequest, AccountTypeRequest
  Money:        DepositDTO, CreateDepositRequest, TransferDTO, CreateTransferRequest
  History:      TransactionDTO, PageDTO

AMOUNTS:
  Amounts are JSON numbers with two decimals. Requests also accept strings.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/backoffice/ledger"
)

// =============================================================================
// SECURITY
// =============================================================================

type SignupRequest struct {
	DocumentTypeID string `json:"documentTypeId"`
	Document       string `json:"document"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Password       string `json:"password"`
	AvatarURL      string `json:"avatarUrl"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FullName  *string `json:"fullName"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
	Password  *string `json:"password"`
}

type CustomerDTO struct {
	ID             string    `json:"id"`
	DocumentTypeID string    `json:"documentTypeId"`
	Document       string    `json:"document"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Customer  *CustomerDTO `json:"customer,omitempty"`
	Account   *AccountDTO  `json:"account,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountTypeDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AccountDTO struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customerId"`
	AccountType AccountTypeDTO `json:"accountType"`
	Balance     ledger.Amount  `json:"balance"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type OpenAccountRequest struct {
	AccountTypeID string `json:"accountTypeId"`
}

type AccountStateRequest struct {
	Active *bool `json:"active"`
}

type AccountTypeRequest struct {
	AccountTypeID string `json:"accountTypeId"`
}

type BalanceDTO struct {
	AccountID string        `json:"accountId,omitempty"`
	Balance   ledger.Amount `json:"balance"`
}

type ExistsDTO struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
}

type CloseAccountResponse struct {
	ID              string `json:"id"`
	CustomerDeleted bool   `json:"customerDeleted"`
}

// =============================================================================
// DEPOSITS & TRANSFERS
// =============================================================================

type CreateDepositRequest struct {
	AccountID string         `json:"accountId"`
	Amount    *ledger.Amount `json:"amount"`
}

type DepositDTO struct {
	ID        string        `json:"id"`
	AccountID string        `json:"accountId"`
	Amount    ledger.Amount `json:"amount"`
	DateTime  time.Time     `json:"dateTime"`
}

type CreateTransferRequest struct {
	IncomeID  string         `json:"incomeId"`
	OutcomeID string         `json:"outcomeId"`
	Amount    *ledger.Amount `json:"amount"`
	Reason    string         `json:"reason"`
}

// TransferDTO carries the signed amount when listed from an account's point of view.
type TransferDTO struct {
	ID        string        `json:"id"`
	IncomeID  string        `json:"incomeId"`
	OutcomeID string        `json:"outcomeId"`
	Amount    ledger.Amount `json:"amount"`
	Reason    string        `json:"reason,omitempty"`
	DateTime  time.Time     `json:"dateTime"`
}

// =============================================================================
// HISTORY
// =============================================================================

type TransactionDTO struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Amount    ledger.Amount `json:"amount"`
	DateTime  time.Time     `json:"dateTime"`
	AccountID string        `json:"accountId,omitempty"`
	IncomeID  string        `json:"incomeId,omitempty"`
	OutcomeID string        `json:"outcomeId,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// PageDTO is ledger.Page with items converted for the wire.
type PageDTO[T any] struct {
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Range       int        `json:"range"`
	Size        int        `json:"size"`
	Items       []T        `json:"items"`
	DateInit    *time.Time `json:"dateInit,omitempty"`
	DateEnd     *time.Time `json:"dateEnd,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPageDTO[T, U any](p ledger.Page[T], conv func(T) U) PageDTO[U] {
	items := make([]U, len(p.Items))
	for i, it := range p.Items {
		items[i] = conv(it)
	}
	return PageDTO[U]{
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		Range:       p.Range,
		Size:        p.Size,
		Items:       items,
		DateInit:    p.DateInit,
		DateEnd:     p.DateEnd,
	}
}

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:             string(c.ID),
		DocumentTypeID: string(c.DocumentTypeID),
		Document:       c.Document,
		FullName:       c.FullName,
		Email:          c.Email,
		Phone:          c.Phone,
		AvatarURL:      c.AvatarURL,
		Active:         c.Active,
		CreatedAt:      c.CreatedAt,
	}
}

func toDepositDTO(d ledger.Deposit) DepositDTO {
	return DepositDTO{
		ID:        string(d.ID),
		AccountID: string(d.AccountID),
		Amount:    d.Amount,
		DateTime:  d.At,
	}
}

func toTransferDTO(t ledger.Transfer) TransferDTO {
	return TransferDTO{
		ID:        string(t.ID),
		IncomeID:  string(t.IncomeID),
		OutcomeID: string(t.OutcomeID),
		Amount:    t.Amount,
		Reason:    t.Reason,
		DateTime:  t.At,
	}
}

func toTransferEntryDTO(e ledger.TransferEntry) TransferDTO {
	dto := toTransferDTO(e.Transfer)
	dto.Amount = e.SignedAmount()
	return dto
}

func toTransactionDTO(e ledger.Entry) TransactionDTO {
	dto := TransactionDTO{
		ID:       e.EntryID(),
		Type:     string(e.Kind()),
		Amount:   e.SignedAmount(),
		DateTime: e.OccurredAt(),
	}
	switch v := e.(type) {
	case ledger.DepositEntry:
		dto.AccountID = string(v.AccountID)
	case ledger.TransferEntry:
		dto.IncomeID = string(v.IncomeID)
		dto.OutcomeID = string(v.OutcomeID)
		dto.Reason = v.Reason
	}
	return dto
}
