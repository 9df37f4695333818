package setup

import (
	"context"
	"fmt"

	apperrors "github.com/alexjbarnes/halcyon/internal/errors"
	"github.com/alexjbarnes/halcyon/internal/hub"
	"github.com/alexjbarnes/halcyon/internal/state"
)

const (
	sampleSensorID   = "sensor123"
	sampleSensorIcon = "mdi:die-multiple"
)

// SampleSensor is the sensor created on first registration.
func SampleSensor() hub.SensorRegistration {
	class := "battery"

	return hub.SensorRegistration{
		DeviceClass:       &class,
		Icon:              sampleSensorIcon,
		Name:              "Sample Sensor",
		State:             "init",
		Type:              "sensor",
		UniqueID:          sampleSensorID,
		UnitOfMeasurement: "none",
		Attributes:        map[string]string{},
	}
}

// Report pushes value as the sample sensor's state. It needs a record
// that has completed setup. Unlike Run, which only fills absent fields,
// Report needs values it can send, so an empty token or webhook id is
// rejected here rather than sent to the hub.
func (r *Runner) Report(ctx context.Context, path, value string) error {
	rec, err := state.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if rec.LongLivedToken() == "" || rec.WebhookID() == "" {
		return fmt.Errorf("%w: %s has no long-lived token or webhook id, run setup first", apperrors.ErrConfigIO, path)
	}

	client, err := r.newClient(rec.Host())
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}

	update := []hub.SensorState{{
		Icon:       sampleSensorIcon,
		State:      value,
		Type:       "sensor",
		UniqueID:   sampleSensorID,
		Attributes: map[string]string{},
	}}

	if err := client.UpdateSensorStates(ctx, hub.LongLivedToken(rec.LongLivedToken()), rec.WebhookID(), update); err != nil {
		return fmt.Errorf("sensor update: %w", err)
	}

	fmt.Fprintf(r.out, "Reported %s = %s\n", sampleSensorID, value)

	return nil
}
