// ABOUTME: Account flows against the parking API: login, logout, registration and profile
// ABOUTME: Login is the only writer of the session pair; logout always clears it

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/gatekeeper/internal/dispatch"
	"github.com/2389/gatekeeper/internal/session"
)

// API paths, relative to the dispatcher's base URL.
const (
	PathLogin          = "/login"
	PathLogout         = "/logout"
	PathRegister       = "/register"
	PathProfile        = "/profile"
	PathProfileUpdate  = "/profile/update"
	PathChangePassword = "/profile/change-password"
)

// Account errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("account already exists")
	ErrNotFound           = errors.New("account not found")
	ErrUnexpectedStatus   = errors.New("unexpected response status")
	ErrMalformedResponse  = errors.New("malformed response")
)

// Client runs account flows through a dispatcher and records the resulting
// credentials in a session store.
type Client struct {
	dispatcher *dispatch.Dispatcher
	store      session.Store
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates an account client.
func New(d *dispatch.Dispatcher, store session.Store, opts ...Option) *Client {
	c := &Client{
		dispatcher: d,
		store:      store,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "account")
	return c
}

// LoginResult is what the API returns on a successful login, minus the token.
type LoginResult struct {
	Email   string
	Role    session.Role
	Message string
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// Login authenticates and stores the returned token and role together.
// A rejected login leaves the session untouched.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	if err := creds.Validate(); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp, err := c.dispatcher.PostJSON(ctx, PathLogin, creds)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	var body loginResponse
	decodeErr := dispatch.DecodeJSON(resp, &body)

	switch resp.StatusCode {
	case http.StatusOK:
		if decodeErr != nil {
			return LoginResult{}, fmt.Errorf("login: %w: %v", ErrMalformedResponse, decodeErr)
		}
	case http.StatusBadRequest, http.StatusUnauthorized:
		c.logger.Info("login rejected", "email", creds.Email, "status", resp.StatusCode)
		return LoginResult{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, body.Message)
	default:
		return LoginResult{}, statusError("login", resp.StatusCode, body.Message)
	}

	if body.Token == "" {
		return LoginResult{}, fmt.Errorf("login: %w: no token in response", ErrMalformedResponse)
	}
	role := session.Role(body.Role)
	if role == "" {
		role = session.RoleUser
	}

	if err := c.store.Set(ctx, session.Session{Token: body.Token, Role: role}); err != nil {
		return LoginResult{}, fmt.Errorf("storing session: %w", err)
	}
	c.logger.Info("logged in", "email", body.Email, "role", role)
	return LoginResult{Email: body.Email, Role: role, Message: body.Message}, nil
}

// Logout tells the API the session is over and clears the local session.
// The local session is cleared even when the API call fails; both failures
// are reported.
func (c *Client) Logout(ctx context.Context) error {
	var serverErr error
	resp, err := c.dispatcher.Dispatch(ctx, PathLogout, dispatch.Options{Method: http.MethodPost})
	if err != nil {
		serverErr = fmt.Errorf("logout: %w", err)
	} else {
		var body messageResponse
		_ = dispatch.DecodeJSON(resp, &body)
		if resp.StatusCode != http.StatusOK {
			serverErr = statusError("logout", resp.StatusCode, body.Message)
		}
	}
	if serverErr != nil {
		c.logger.Warn("logout not confirmed by server", "error", serverErr)
	}

	var clearErr error
	if err := c.store.Clear(ctx); err != nil {
		clearErr = fmt.Errorf("clearing session: %w", err)
	}
	return errors.Join(serverErr, clearErr)
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp, err := c.dispatcher.PostJSON(ctx, PathRegister, reg)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	var body messageResponse
	_ = dispatch.DecodeJSON(resp, &body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		c.logger.Info("registered", "email", reg.Email)
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, reg.Email)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, body.Message)
	default:
		return statusError("register", resp.StatusCode, body.Message)
	}
}

// Profile is an account's public details.
type Profile struct {
	Email    string       `json:"email"`
	Username string       `json:"username"`
	Role     session.Role `json:"role"`
}

// Profile fetches the profile for email.
func (c *Client) Profile(ctx context.Context, email string) (Profile, error) {
	if err := validateEmail(email); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp, err := c.dispatcher.PostJSON(ctx, PathProfile, map[string]string{"email": email})
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var body messageResponse
		_ = dispatch.DecodeJSON(resp, &body)
		return Profile{}, profileStatusError("profile", resp.StatusCode, email, body.Message)
	}

	var p Profile
	if err := dispatch.DecodeJSON(resp, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: %w: %v", ErrMalformedResponse, err)
	}
	return p, nil
}

// UpdateProfile changes the username of the account with email.
func (c *Client) UpdateProfile(ctx context.Context, email, username string) error {
	if err := validateEmail(email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return c.postProfile(ctx, "update profile", PathProfileUpdate, email, map[string]string{
		"email":    email,
		"username": username,
	})
}

// ChangePassword replaces the account password. A wrong current password
// is reported as ErrInvalidCredentials.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	if err := change.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	err := c.postProfile(ctx, "change password", PathChangePassword, change.Email, change)
	if errors.Is(err, ErrInvalidInput) {
		return fmt.Errorf("%w: current password rejected", ErrInvalidCredentials)
	}
	return err
}

func (c *Client) postProfile(ctx context.Context, op, path, email string, payload any) error {
	resp, err := c.dispatcher.PostJSON(ctx, path, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var body messageResponse
	_ = dispatch.DecodeJSON(resp, &body)

	if resp.StatusCode != http.StatusOK {
		return profileStatusError(op, resp.StatusCode, email, body.Message)
	}
	return nil
}

func profileStatusError(op string, status int, email, message string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, email)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, message)
	default:
		return statusError(op, status, message)
	}
}

func statusError(op string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("%s: %w %d: %s", op, ErrUnexpectedStatus, status, message)
}
