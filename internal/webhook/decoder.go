// AngelaMos | 2026
// decoder.go

package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
)

var (
	ErrMalformed     = errors.New("malformed webhook payload")
	ErrMissingFields = errors.New("webhook payload missing required fields")
)

// Event is an authenticated provider notification. Only the fields the
// entitlement transition consumes are kept, plus the test-mode flag.
type Event struct {
	Name        entitlement.EventName
	UserID      string
	ObjectID    string
	CustomerID  string
	VariantName string
	RenewsAt    *time.Time
	UpdatedAt   *time.Time
	TestMode    bool
}

// Entitlement converts the notification into transition input. The object id
// doubles as the subscription id, including for one-time orders.
func (e *Event) Entitlement() entitlement.Event {
	return entitlement.Event{
		Name:           e.Name,
		UserID:         e.UserID,
		SubscriptionID: e.ObjectID,
		CustomerID:     e.CustomerID,
		VariantName:    e.VariantName,
		RenewsAt:       e.RenewsAt,
		OccurredAt:     e.UpdatedAt,
	}
}

type payload struct {
	Meta struct {
		EventName  string `json:"event_name" validate:"required"`
		TestMode   bool   `json:"test_mode"`
		CustomData struct {
			UserID flexString `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         flexString `json:"id" validate:"required"`
		Attributes struct {
			CustomerID  flexString `json:"customer_id"`
			VariantName string     `json:"variant_name"`
			RenewsAt    *time.Time `json:"renews_at"`
			UpdatedAt   *time.Time `json:"updated_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// flexString accepts a JSON string or number; the provider sends numeric ids
// for some resources.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type Decoder struct {
	validator *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Decode parses an already authenticated body. Unknown event names decode
// successfully and are filtered by the caller.
func (d *Decoder) Decode(raw []byte) (*Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	p.Meta.EventName = strings.TrimSpace(p.Meta.EventName)
	if err := d.validator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	attrs := p.Data.Attributes
	return &Event{
		Name:        entitlement.EventName(p.Meta.EventName),
		UserID:      string(p.Meta.CustomData.UserID),
		ObjectID:    string(p.Data.ID),
		CustomerID:  string(attrs.CustomerID),
		VariantName: attrs.VariantName,
		RenewsAt:    attrs.RenewsAt,
		UpdatedAt:   attrs.UpdatedAt,
		TestMode:    p.Meta.TestMode,
	}, nil
}
