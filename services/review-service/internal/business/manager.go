package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reviewloop/reviewloop/services/review-service/internal/storage"
)

const DefaultSMSDelayHours = 24

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidDelay = errors.New("sms delay must be zero or more hours")
)

type Manager struct {
	records *storage.Records
}

func NewManager(records *storage.Records) *Manager {
	return &Manager{records: records}
}

type SetupInput struct {
	Name          string
	GMBID         string
	GMBURL        string
	SMSDelayHours int
}

// CreateOrReplace stores the owner's business profile, overwriting any
// existing record. A zero delay falls back to the 24h default; the calendar
// connection flag always resets to false until the next sync.
func (m *Manager) CreateOrReplace(ctx context.Context, ownerID string, in SetupInput) (storage.Business, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.GMBID = strings.TrimSpace(in.GMBID)
	in.GMBURL = strings.TrimSpace(in.GMBURL)
	if in.Name == "" {
		return storage.Business{}, fmt.Errorf("%w: name", ErrMissingField)
	}
	if in.GMBID == "" {
		return storage.Business{}, fmt.Errorf("%w: gmbId", ErrMissingField)
	}
	if in.GMBURL == "" {
		return storage.Business{}, fmt.Errorf("%w: gmbUrl", ErrMissingField)
	}
	if in.SMSDelayHours < 0 {
		return storage.Business{}, ErrInvalidDelay
	}
	delay := in.SMSDelayHours
	if delay == 0 {
		delay = DefaultSMSDelayHours
	}

	b := storage.Business{
		ID:                ownerID,
		Email:             ownerID,
		Name:              in.Name,
		GMBID:             in.GMBID,
		GMBURL:            in.GMBURL,
		CalendarConnected: false,
		SMSDelayHours:     delay,
		CreatedAt:         storage.Timestamp(time.Now()),
	}
	if err := m.records.SetBusiness(ctx, b); err != nil {
		return storage.Business{}, err
	}
	return b, nil
}

func (m *Manager) Get(ctx context.Context, ownerID string) (storage.Business, error) {
	return m.records.GetBusiness(ctx, ownerID)
}
