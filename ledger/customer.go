package ledger

import (
	"context"
	"strings"
)

// NewCustomer is the signup payload. PasswordHash is already hashed.
type NewCustomer struct {
	DocumentTypeID DocumentTypeID
	Document       string
	FullName       string
	Email          string
	Phone          string
	PasswordHash   string
	AvatarURL      string
}

// CustomerUpdate changes the non-nil fields of a customer profile.
type CustomerUpdate struct {
	FullName     *string
	Email        *string
	Phone        *string
	AvatarURL    *string
	PasswordHash *string
}

// Register creates a customer together with a default account.
// If the account cannot be opened nothing is persisted and the error is internal.
func (l *Ledger) Register(ctx context.Context, nc NewCustomer) (Customer, Account, error) {
	if nc.DocumentTypeID == "" {
		nc.DocumentTypeID = DefaultDocumentTypeID
	}
	c := Customer{
		ID:             CustomerID(newID()),
		DocumentTypeID: nc.DocumentTypeID,
		Document:       strings.TrimSpace(nc.Document),
		FullName:       strings.TrimSpace(nc.FullName),
		Email:          normalizeEmail(nc.Email),
		Phone:          strings.TrimSpace(nc.Phone),
		PasswordHash:   nc.PasswordHash,
		AvatarURL:      nc.AvatarURL,
		Active:         true,
		CreatedAt:      l.clock.Now(),
	}

	var acct Account
	err := l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetDocumentType(ctx, c.DocumentTypeID); err != nil {
			return err
		}
		if err := s.InsertCustomer(ctx, c); err != nil {
			return err
		}
		var err error
		acct, err = l.openAccount(ctx, s, c.ID, l.acctType)
		if err != nil {
			return internal("open default account", err)
		}
		return nil
	})
	if err != nil {
		return Customer{}, Account{}, err
	}

	l.log.Info("customer registered", "component", "ledger", "customer_id", c.ID, "account_id", acct.ID)
	l.publish(ctx, Event{Type: EventAccountOpened, CustomerID: c.ID, AccountID: acct.ID,
		RecordID: string(acct.ID), Amount: acct.Balance, At: acct.CreatedAt})
	return c, acct, nil
}

func (l *Ledger) Customer(ctx context.Context, id CustomerID) (Customer, error) {
	var c Customer
	err := l.store.View(ctx, func(s Store) error {
		var err error
		c, err = s.GetCustomer(ctx, id)
		return err
	})
	return c, err
}

func (l *Ledger) CustomerByEmail(ctx context.Context, email string) (Customer, error) {
	var c Customer
	err := l.store.View(ctx, func(s Store) error {
		var err error
		c, err = s.FindCustomerByEmail(ctx, normalizeEmail(email))
		return err
	})
	return c, err
}

func (l *Ledger) UpdateCustomer(ctx context.Context, id CustomerID, u CustomerUpdate) (Customer, error) {
	var c Customer
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		c, err = s.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		if u.FullName != nil {
			c.FullName = strings.TrimSpace(*u.FullName)
		}
		if u.Email != nil {
			c.Email = normalizeEmail(*u.Email)
		}
		if u.Phone != nil {
			c.Phone = strings.TrimSpace(*u.Phone)
		}
		if u.AvatarURL != nil {
			c.AvatarURL = *u.AvatarURL
		}
		if u.PasswordHash != nil {
			c.PasswordHash = *u.PasswordHash
		}
		return s.UpdateCustomer(ctx, c)
	})
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
