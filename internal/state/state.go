package state

import (
	"bytes"
	"fmt"
	"os"

	apperrors "github.com/alexjbarnes/halcyon/internal/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Hub holds the hub address and the credentials obtained during setup.
// Optional fields are nil until the setup flow fills them.
type Hub struct {
	Host           string  `yaml:"host"`
	LongLivedToken *string `yaml:"long-lived-token,omitempty"`
	DeviceID       *string `yaml:"device-id,omitempty"`
	WebhookID      *string `yaml:"webhook-id,omitempty"`
}

// Record is the durable configuration file. Host is operator supplied;
// the other fields are written at most once each.
type Record struct {
	HA Hub `yaml:"ha"`
}

// Host returns the hub address.
func (r Record) Host() string { return r.HA.Host }

// DeviceID returns the device id, or "" if absent.
func (r Record) DeviceID() string { return deref(r.HA.DeviceID) }

// LongLivedToken returns the long-lived token, or "" if absent.
func (r Record) LongLivedToken() string { return deref(r.HA.LongLivedToken) }

// WebhookID returns the webhook id, or "" if absent.
func (r Record) WebhookID() string { return deref(r.HA.WebhookID) }

// HasLongLivedToken reports whether the token field is present. An empty
// string counts as present and is never replaced.
func (r Record) HasLongLivedToken() bool { return r.HA.LongLivedToken != nil }

func deref(p *string) string {
	if p == nil {
		return ""
	}

	return *p
}

// Load reads and decodes the record at path. A record without a host is
// rejected because no later step can do anything useful with it.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: reading %s: %w", apperrors.ErrConfigIO, path, err)
	}

	var r Record
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return Record{}, fmt.Errorf("%w: parsing %s: %w", apperrors.ErrConfigIO, path, err)
	}

	if r.HA.Host == "" {
		return Record{}, fmt.Errorf("%w: %s has no ha.host", apperrors.ErrConfigIO, path)
	}

	return r, nil
}

// Save replaces the contents of the existing file at path with r. The
// file is truncated and then written, so a crash mid-write can leave it
// corrupt; there is no temp-file rename.
func Save(path string, r Record) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", apperrors.ErrConfigIO, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", apperrors.ErrConfigIO, path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %w", apperrors.ErrConfigIO, path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", apperrors.ErrConfigIO, path, err)
	}

	return nil
}

// WithDeviceID returns a copy of r with the device id set if it was
// absent. The bool reports whether the copy differs from r.
func WithDeviceID(r Record, id string) (Record, bool) {
	if r.HA.DeviceID != nil {
		return r, false
	}

	r.HA.DeviceID = &id

	return r, true
}

// WithLongLivedToken is the fill-if-absent update for the token.
func WithLongLivedToken(r Record, token string) (Record, bool) {
	if r.HA.LongLivedToken != nil {
		return r, false
	}

	r.HA.LongLivedToken = &token

	return r, true
}

// WithWebhookID is the fill-if-absent update for the webhook id.
func WithWebhookID(r Record, id string) (Record, bool) {
	if r.HA.WebhookID != nil {
		return r, false
	}

	r.HA.WebhookID = &id

	return r, true
}

// EnsureDeviceID fills a missing device id with a random UUID and
// persists the record. A record that already has one is returned
// unchanged without touching the file.
func EnsureDeviceID(r Record, path string) (Record, error) {
	if r.HA.DeviceID != nil {
		return r, nil
	}

	next, changed := WithDeviceID(r, uuid.NewString())

	return persist(path, next, changed)
}

// EnsureLongLivedToken stores token if the record has none.
func EnsureLongLivedToken(r Record, path, token string) (Record, error) {
	next, changed := WithLongLivedToken(r, token)
	return persist(path, next, changed)
}

// EnsureWebhookID stores id if the record has none.
func EnsureWebhookID(r Record, path, id string) (Record, error) {
	next, changed := WithWebhookID(r, id)
	return persist(path, next, changed)
}

// persist writes next to path only when it differs from what is on disk.
func persist(path string, next Record, changed bool) (Record, error) {
	if !changed {
		return next, nil
	}

	if err := Save(path, next); err != nil {
		return Record{}, err
	}

	return next, nil
}
