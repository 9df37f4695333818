package hub

// DeviceRegistration is the payload for POST /api/mobile_app/registrations.
type DeviceRegistration struct {
	DeviceID           string         `json:"device_id"`
	AppID              string         `json:"app_id"`
	AppName            string         `json:"app_name"`
	AppVersion         string         `json:"app_version"`
	DeviceName         string         `json:"device_name"`
	Manufacturer       string         `json:"manufacturer"`
	Model              string         `json:"model"`
	OSName             string         `json:"os_name"`
	OSVersion          string         `json:"os_version"`
	SupportsEncryption bool           `json:"supports_encryption"`
	AppData            map[string]any `json:"app_data"`
}

// DeviceRegistrationResponse is returned from a successful registration.
type DeviceRegistrationResponse struct {
	WebhookID    string  `json:"webhook_id"`
	CloudhookURL *string `json:"cloudhook_url"`
	RemoteUIURL  *string `json:"remote_ui_url"`
	Secret       *string `json:"secret"`
}

// SensorRegistration is posted to the device webhook to create a sensor.
type SensorRegistration struct {
	DeviceClass       *string           `json:"device_class,omitempty"`
	Icon              string            `json:"icon"`
	Name              string            `json:"name"`
	State             string            `json:"state"`
	Type              string            `json:"type"`
	UniqueID          string            `json:"unique_id"`
	UnitOfMeasurement string            `json:"unit_of_measurement"`
	Attributes        map[string]string `json:"attributes"`
}

// SensorState is one entry of an update_sensor_states webhook call.
type SensorState struct {
	Icon       string            `json:"icon"`
	State      string            `json:"state"`
	Type       string            `json:"type"`
	UniqueID   string            `json:"unique_id"`
	Attributes map[string]string `json:"attributes"`
}

// webhookRequest wraps every webhook payload with its command type.
type webhookRequest struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EntityState is one element of GET /api/states.
type EntityState struct {
	EntityID   string           `json:"entity_id"`
	State      string           `json:"state"`
	Attributes EntityAttributes `json:"attributes"`
}

// EntityAttributes holds the attributes this client inspects.
type EntityAttributes struct {
	FriendlyName string `json:"friendly_name"`
}

// APIError represents an error body from the hub REST API.
type APIError struct {
	Message string `json:"message"`
}

// WebSocket message types.

const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"

	cmdLongLivedToken = "auth/long_lived_access_token"
)

// message is an inbound negotiation message. The concrete types below
// are the only implementations.
type message interface {
	messageType() string
}

// AuthRequiredMessage is the first frame the hub sends after connect.
type AuthRequiredMessage struct {
	Type      string `json:"type"`
	HAVersion string `json:"ha_version"`
}

// AuthOKMessage confirms the access token was accepted.
type AuthOKMessage struct {
	Type      string `json:"type"`
	HAVersion string `json:"ha_version"`
}

// AuthInvalidMessage reports that the access token was rejected.
type AuthInvalidMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResultMessage answers a command. For the long-lived token command
// Result carries the token.
type ResultMessage struct {
	ID      int          `json:"id"`
	Type    string       `json:"type"`
	Success bool         `json:"success"`
	Result  *string      `json:"result"`
	Error   *ResultError `json:"error,omitempty"`
}

// ResultError is the error object of a failed command.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (AuthRequiredMessage) messageType() string { return msgAuthRequired }
func (AuthOKMessage) messageType() string       { return msgAuthOK }
func (AuthInvalidMessage) messageType() string  { return msgAuthInvalid }
func (ResultMessage) messageType() string       { return msgResult }

// AuthMessage answers auth_required with the short-lived access token.
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// LongLivedTokenRequest asks the hub to issue a long-lived token.
type LongLivedTokenRequest struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	ClientName string `json:"client_name"`
	Lifespan   int    `json:"lifespan"`
}
