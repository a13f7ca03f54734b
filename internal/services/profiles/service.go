package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"brigadas-analytics/internal/api"
	"brigadas-analytics/internal/crypto"
	"brigadas-analytics/internal/database"
	"brigadas-analytics/internal/models"
)

// ErrInvalidRequest wraps request validation failures
var ErrInvalidRequest = errors.New("invalid profile request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateProfileRequest represents a request to create a connection profile
type CreateProfileRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Owner   string `json:"owner" validate:"max=100"`
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key" validate:"required"` // Plain text, will be encrypted
}

// TestConnectionRequest represents a connection test request
type TestConnectionRequest struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key" validate:"required"`
}

// TestConnectionResponse represents the test result
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Leaders int    `json:"leaders_visible,omitempty"`
}

// Service manages REST gateway profiles. API keys are sealed before they are stored.
type Service struct {
	store  *database.ProfileStore
	sealer *crypto.Sealer
	logger *zap.Logger
}

// NewService creates a profile service
func NewService(store *database.ProfileStore, sealer *crypto.Sealer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sealer: sealer, logger: logger}
}

// ListProfiles returns all connection profiles
func (s *Service) ListProfiles(ctx context.Context) ([]models.ConnectionProfile, error) {
	return s.store.ListProfiles(ctx)
}

// CreateProfile validates the request, encrypts the API key and stores the profile
func (s *Service) CreateProfile(ctx context.Context, req CreateProfileRequest) (*models.ConnectionProfile, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.sealer == nil {
		return nil, errors.New("encryption system not initialized - cannot save profiles")
	}

	apiKeyEnc, err := s.sealer.Encrypt(req.APIKey)
	if err != nil {
		return nil, err
	}

	profile := &models.ConnectionProfile{
		Name:      strings.TrimSpace(req.Name),
		Owner:     req.Owner,
		BaseURL:   strings.TrimRight(req.BaseURL, "/"),
		APIKeyEnc: apiKeyEnc,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Info("Connection profile created", zap.String("profile", profile.Name))
	return profile, nil
}

// DeleteProfile deletes a connection profile
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	return s.store.DeleteProfile(ctx, id)
}

// Client returns a REST gateway client for the profile with the given id or name
func (s *Service) Client(ctx context.Context, idOrName string) (*api.Client, error) {
	if s.sealer == nil {
		return nil, errors.New("encryption system not initialized - cannot read profiles")
	}

	profile, err := s.store.GetProfile(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.sealer.Decrypt(profile.APIKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API key for profile %s: %w", profile.Name, err)
	}
	return api.NewClient(profile.BaseURL, apiKey), nil
}

// TestConnection checks a URL and API key without saving anything
func (s *Service) TestConnection(ctx context.Context, req TestConnectionRequest) TestConnectionResponse {
	if err := validateRequest(req); err != nil {
		return TestConnectionResponse{Success: false, Error: err.Error()}
	}

	resp, err := api.NewClient(req.BaseURL, req.APIKey).Ping(ctx)
	if err != nil {
		return TestConnectionResponse{
			Success: false,
			Error:   fmt.Sprintf("Connection failed: %v", err),
		}
	}

	if !resp.IsSuccess() {
		var errorMsg string
		switch resp.StatusCode() {
		case 401:
			errorMsg = "Invalid API key"
		case 404:
			errorMsg = "Server not found or leaders table not exposed"
		case 403:
			errorMsg = "Access forbidden (check row-level security policies)"
		default:
			errorMsg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.Status())
		}
		return TestConnectionResponse{Success: false, Error: errorMsg}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return TestConnectionResponse{Success: false, Error: "Unexpected response body; is this a REST endpoint?"}
	}
	return TestConnectionResponse{Success: true, Leaders: len(rows)}
}

func validateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
