// ABOUTME: Client and account registration, authentication and profile management
// ABOUTME: Keeps the central registry and the per-client tenant stores in step

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// Errors returned by the identity service.
var (
	ErrEmailInUse         = fault.New(fault.Conflict, "email already in use")
	ErrInvalidCredentials = fault.New(fault.Unauthorized, "invalid email or password")
	ErrWrongPassword      = fault.New(fault.Validation, "current password is incorrect")
	ErrMissingField       = fault.New(fault.Validation, "missing required field")
	ErrInvalidEmail       = fault.New(fault.Validation, "invalid email address")
)

// Tenants is the tenant store lifecycle the service drives.
// *tenantdb.Manager implements it.
type Tenants interface {
	Provision(ctx context.Context, tenantID string) (*tenantdb.Handle, error)
	Destroy(ctx context.Context, tenantID string) (bool, error)
	Exists(tenantID string) bool
	List() ([]string, error)
}

// Service manages clients and accounts.
type Service struct {
	registry store.Registry
	tenants  Tenants
	hasher   Hasher
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(registry store.Registry, tenants Tenants, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		tenants:  tenants,
		hasher:   NewBcryptHasher(0),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "identity")
	return s
}

// RegisterClient creates a client and provisions its tenant store in the
// same registry transaction.
func (s *Service) RegisterClient(ctx context.Context, name, email string) (*store.Client, error) {
	client, err := s.newClient(name, email)
	if err != nil {
		return nil, err
	}
	if err := s.createClient(ctx, client, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterAccount creates an account bound to an existing client.
func (s *Service) RegisterAccount(ctx context.Context, username, email, password, clientID string) (*store.Account, error) {
	if err := checkVar(clientID, "required", "client_id"); err != nil {
		return nil, err
	}
	account, err := s.newAccount(username, email, password, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.registry.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info("account registered", "account_id", account.ID, "client_id", clientID)
	return account, nil
}

// Registration is the input of Register.
type Registration struct {
	ClientName  string
	ClientEmail string
	Username    string
	Email       string
	Password    string
}

// Register creates a client, its tenant store and its first account as one
// unit. If any step fails nothing is left behind.
func (s *Service) Register(ctx context.Context, r Registration) (*store.Client, *store.Account, error) {
	client, err := s.newClient(r.ClientName, r.ClientEmail)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.newAccount(r.Username, r.Email, r.Password, client.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.createClient(ctx, client, account); err != nil {
		return nil, nil, err
	}
	return client, account, nil
}

// createClient inserts client (and owner) with tenant provisioning inside
// the registry transaction. A store provisioned for a registration that
// does not commit is destroyed again, including one whose provisioning
// finishes after the caller gave up.
func (s *Service) createClient(ctx context.Context, client *store.Client, owner *store.Account) error {
	attempted := false
	err := s.registry.CreateClient(ctx, client, owner, func(ctx context.Context, c *store.Client) error {
		if s.tenants.Exists(c.TenantID) {
			return store.ErrTenantIDTaken
		}
		attempted = true
		if _, err := s.tenants.Provision(ctx, c.TenantID); err != nil {
			return fmt.Errorf("provisioning tenant store: %w", err)
		}
		return nil
	})
	if err != nil {
		if attempted {
			if _, derr := s.tenants.Destroy(context.WithoutCancel(ctx), client.TenantID); derr != nil {
				s.logger.Error("removing store of failed registration", "tenant_id", client.TenantID, "error", derr)
			}
		}
		return err
	}

	s.logger.Info("client registered", "client_id", client.ID, "tenant_id", client.TenantID)
	return nil
}

func (s *Service) newClient(name, email string) (*store.Client, error) {
	in := clientInput{Name: strings.TrimSpace(name), Email: normalizeEmail(email)}
	if err := checkStruct(in); err != nil {
		return nil, err
	}
	id := s.newID()
	return &store.Client{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		TenantID:  tenantdb.NewTenantID(id),
		CreatedAt: s.now(),
		IsActive:  true,
	}, nil
}

func (s *Service) newAccount(username, email, password, clientID string) (*store.Account, error) {
	in := accountInput{
		Username: strings.TrimSpace(username),
		Email:    normalizeEmail(email),
		Password: password,
	}
	if err := checkStruct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	return &store.Account{
		ID:           s.newID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
		IsActive:     true,
		ClientID:     clientID,
	}, nil
}

// Authenticate checks an email and password pair. Unknown emails, inactive
// accounts and wrong passwords all return ErrInvalidCredentials; a valid
// login for an inactive client returns session.ErrClientInactive.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*store.Account, *store.Client, error) {
	email = normalizeEmail(email)
	if err := checkStruct(loginInput{Email: email, Password: password}); err != nil {
		return nil, nil, err
	}

	account, err := s.registry.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			_ = s.hasher.Compare(dummyHash, password)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("checking password: %w", err)
	}
	if !account.IsActive {
		return nil, nil, ErrInvalidCredentials
	}

	client, err := s.registry.GetClient(ctx, account.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !client.IsActive {
		return nil, nil, session.ErrClientInactive
	}

	s.logger.Debug("account authenticated", "account_id", account.ID)
	return account, client, nil
}

// AccountPatch lists profile fields to change. Nil fields are left unchanged.
type AccountPatch struct {
	Username *string
	Email    *string
}

// UpdateAccount applies patch to the account and returns the result.
func (s *Service) UpdateAccount(ctx context.Context, id string, patch AccountPatch) (*store.Account, error) {
	var update store.AccountUpdate
	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if err := checkVar(username, "required", "username"); err != nil {
			return nil, err
		}
		update.Username = &username
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if err := checkVar(email, "required,email", "email"); err != nil {
			return nil, err
		}
		other, err := s.registry.GetAccountByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return nil, ErrEmailInUse
		case err != nil && !errors.Is(err, store.ErrAccountNotFound):
			return nil, err
		}
		update.Email = &email
	}

	if err := s.registry.UpdateAccount(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrAccountAlreadyExists) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return s.registry.GetAccount(ctx, id)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := checkStruct(passwordInput{Current: current, Next: next}); err != nil {
		return err
	}
	account, err := s.registry.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(account.PasswordHash, current); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrWrongPassword
		}
		return fmt.Errorf("checking password: %w", err)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.registry.UpdateAccountPassword(ctx, id, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", "account_id", id)
	return nil
}

// SetProfilePicture stores a reference to the account's picture. An empty
// ref clears it.
func (s *Service) SetProfilePicture(ctx context.Context, id, ref string) error {
	return s.registry.UpdateAccountProfilePicture(ctx, id, strings.TrimSpace(ref))
}

// DeactivateClient blocks every account of the client. Tenant data is kept.
func (s *Service) DeactivateClient(ctx context.Context, id string) error {
	if err := s.registry.SetClientActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("client deactivated", "client_id", id)
	return nil
}

// ActivateClient re-enables a deactivated client.
func (s *Service) ActivateClient(ctx context.Context, id string) error {
	if err := s.registry.SetClientActive(ctx, id, true); err != nil {
		return err
	}
	s.logger.Info("client activated", "client_id", id)
	return nil
}

// DeactivateAccount blocks one account.
func (s *Service) DeactivateAccount(ctx context.Context, id string) error {
	if err := s.registry.SetAccountActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("account deactivated", "account_id", id)
	return nil
}

// ActivateAccount re-enables one account. Its client must also be active
// for logins to succeed.
func (s *Service) ActivateAccount(ctx context.Context, id string) error {
	if err := s.registry.SetAccountActive(ctx, id, true); err != nil {
		return err
	}
	s.logger.Info("account activated", "account_id", id)
	return nil
}

// DeleteClient removes the client, its accounts and its tenant store. The
// registry rows go first so no account can reach a half-destroyed store.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	client, err := s.registry.GetClient(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registry.DeleteClient(ctx, id); err != nil {
		return err
	}
	removed, err := s.tenants.Destroy(ctx, client.TenantID)
	if err != nil {
		return fmt.Errorf("client deleted but destroying tenant store %s: %w", client.TenantID, err)
	}
	s.logger.Info("client deleted", "client_id", id, "tenant_id", client.TenantID, "store_removed", removed)
	return nil
}

// ReconcileReport summarizes a Reconcile run.
type ReconcileReport struct {
	// Provisioned lists tenant ids whose missing store was created.
	Provisioned []string
	// Orphans lists stores on disk that no client refers to.
	Orphans []string
}

// Reconcile provisions a store for every client that lacks one and reports
// stores that belong to no client. Orphans are never removed here.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	clients, err := s.registry.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	onDisk, err := s.tenants.List()
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Provisioned: []string{}, Orphans: []string{}}
	known := make(map[string]bool, len(clients))
	var result *multierror.Error
	for _, c := range clients {
		known[c.TenantID] = true
		if s.tenants.Exists(c.TenantID) {
			continue
		}
		if _, err := s.tenants.Provision(ctx, c.TenantID); err != nil {
			result = multierror.Append(result, fmt.Errorf("provisioning %s: %w", c.TenantID, err))
			continue
		}
		report.Provisioned = append(report.Provisioned, c.TenantID)
	}
	for _, id := range onDisk {
		if !known[id] {
			report.Orphans = append(report.Orphans, id)
		}
	}

	s.logger.Info("reconciled tenant stores",
		"clients", len(clients),
		"provisioned", len(report.Provisioned),
		"orphans", len(report.Orphans))
	return report, result.ErrorOrNil()
}
