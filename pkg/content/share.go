package content

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/mindvault/internal/logging"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

type ShareStatus struct {
	Shared bool   `json:"shared"`
	Link   string `json:"link,omitempty"`
	URL    string `json:"url,omitempty"`
}

type PublicVault struct {
	Username string               `json:"username"`
	Content  []models.ContentItem `json:"content"`
}

// ShareService publishes an owner's vault read-only behind a random link.
type ShareService struct {
	shares  types.ShareStore
	content types.ContentStore
	baseURL string
	logger  *slog.Logger

	newToken func() string
	now      func() time.Time
}

func NewShareService(shares types.ShareStore, content types.ContentStore, publicBaseURL string, logger *slog.Logger) *ShareService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ShareService{
		shares:   shares,
		content:  content,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		logger:   logger,
		newToken: uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Toggle enables or disables sharing. Enabling a vault that is not shared
// issues a fresh token; disabling clears it so old links stop working.
func (s *ShareService) Toggle(ctx context.Context, principal models.Principal, share bool) (ShareStatus, error) {
	if principal.OwnerID == "" {
		return ShareStatus{}, types.ErrUnauthenticated
	}

	state, err := s.current(ctx, principal.OwnerID)
	if err != nil {
		return ShareStatus{}, err
	}

	state.OwnerID = principal.OwnerID
	state.Username = principal.Username
	state.UpdatedAt = s.now()
	switch {
	case share && (!state.Shared || state.LinkToken == ""):
		state.Shared = true
		state.LinkToken = s.newToken()
	case !share:
		state.Shared = false
		state.LinkToken = ""
	}

	if err := s.shares.PutShare(ctx, state); err != nil {
		return ShareStatus{}, err
	}
	s.logger.Info("vault sharing updated", "owner", principal.OwnerID, "shared", state.Shared)

	return s.status(state), nil
}

func (s *ShareService) Status(ctx context.Context, principal models.Principal) (ShareStatus, error) {
	if principal.OwnerID == "" {
		return ShareStatus{}, types.ErrUnauthenticated
	}
	state, err := s.current(ctx, principal.OwnerID)
	if err != nil {
		return ShareStatus{}, err
	}
	return s.status(state), nil
}

// PublicVault returns the content behind an active share link.
func (s *ShareService) PublicVault(ctx context.Context, token string) (PublicVault, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return PublicVault{}, types.ErrShareNotFound
	}

	state, err := s.shares.FindShareByToken(ctx, token)
	if err != nil {
		return PublicVault{}, err
	}
	if !state.Shared {
		return PublicVault{}, types.ErrShareNotFound
	}

	items, err := s.content.ListContent(ctx, state.OwnerID, "")
	if err != nil {
		return PublicVault{}, err
	}
	if items == nil {
		items = []models.ContentItem{}
	}
	return PublicVault{Username: state.Username, Content: items}, nil
}

func (s *ShareService) current(ctx context.Context, ownerID string) (models.ShareState, error) {
	state, err := s.shares.GetShare(ctx, ownerID)
	if errors.Is(err, types.ErrShareNotFound) {
		return models.ShareState{OwnerID: ownerID}, nil
	}
	return state, err
}

func (s *ShareService) status(state models.ShareState) ShareStatus {
	if !state.Shared || state.LinkToken == "" {
		return ShareStatus{}
	}
	return ShareStatus{
		Shared: true,
		Link:   state.LinkToken,
		URL:    s.baseURL + "/api/v1/share/" + state.LinkToken,
	}
}
