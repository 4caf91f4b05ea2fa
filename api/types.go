package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ruteri/device-activation-backend/activation"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// MaxBodySize is the maximum accepted request body (1MB).
const MaxBodySize = 1024 * 1024

// ActivationRequest is the JSON body of a qualifier-based activation.
type ActivationRequest struct {
	VIN          string `json:"vin"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Qualifier    string `json:"qualifier"`
	HWVersion    string `json:"hwVersion,omitempty"`
	SWVersion    string `json:"swVersion,omitempty"`
	ProductType  string `json:"productType"`
	DeviceType   string `json:"deviceType,omitempty"`
	IMEI         string `json:"imei,omitempty"`
	ICCID        string `json:"iccid,omitempty"`
	MSISDN       string `json:"msisdn,omitempty"`
	IMSI         string `json:"imsi,omitempty"`
	BSSID        string `json:"bssid,omitempty"`
	SSID         string `json:"ssid,omitempty"`
	AAD          string `json:"aad,omitempty"`
}

// PSKActivationRequest is the JSON body of a pre-shared-key activation.
type PSKActivationRequest struct {
	ActivationID string `json:"activationId"`
	PreSharedKey string `json:"preSharedKey"`
	DeviceType   string `json:"deviceType,omitempty"`
}

// ActivationResponse signals success with deviceId and passcode, or the
// provisioned-alive outcome with provisionedAlive=true and neither set.
type ActivationResponse struct {
	DeviceID         string `json:"deviceId,omitempty"`
	Passcode         string `json:"passcode,omitempty"`
	ProvisionedAlive bool   `json:"provisionedAlive"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	DeviceID string `json:"deviceId,omitempty"`
}

type DeactivateRequest struct {
	SerialNumber string `json:"serialNumber"`
	Actor        string `json:"actor,omitempty"`
}

type DeactivateResponse struct {
	SerialNumber      string `json:"serialNumber"`
	Found             bool   `json:"found"`
	DeviceID          string `json:"deviceId,omitempty"`
	ReadinessDisabled int64  `json:"readinessDisabled"`
}

type ReadinessRequest struct {
	SerialNumber       string `json:"serialNumber"`
	UserID             string `json:"userId"`
	AssociationPending bool   `json:"associationPending,omitempty"`
}

type AssociationRequest struct {
	SerialNumber      string `json:"serialNumber"`
	VIN               string `json:"vin"`
	TransactionID     string `json:"transactionId"`
	TransactionStatus string `json:"transactionStatus,omitempty"`
}

type TransactionStatusRequest struct {
	Status string `json:"status"`
}

type AssociationResponse struct {
	SerialNumber      string    `json:"serialNumber"`
	VIN               string    `json:"vin"`
	TransactionID     string    `json:"transactionId"`
	TransactionStatus string    `json:"transactionStatus"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// FactoryRecord is the JSON form of an inventory entry.
type FactoryRecord struct {
	ID           uint64 `json:"id,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	IMEI         string `json:"imei,omitempty"`
	BSSID        string `json:"bssid,omitempty"`
	VIN          string `json:"vin,omitempty"`
	HWVersion    string `json:"hwVersion,omitempty"`
	SWVersion    string `json:"swVersion,omitempty"`
	DeviceType   string `json:"deviceType,omitempty"`
	ICCID        string `json:"iccid,omitempty"`
	MSISDN       string `json:"msisdn,omitempty"`
	IMSI         string `json:"imsi,omitempty"`
	SSID         string `json:"ssid,omitempty"`
	Stolen       bool   `json:"stolen"`
	Faulty       bool   `json:"faulty"`
	State        string `json:"state,omitempty"`
}

// DeviceStatusResponse is the operator view of a device.
type DeviceStatusResponse struct {
	Factory            FactoryRecord        `json:"factory"`
	DeviceID           string               `json:"deviceId,omitempty"`
	ReadinessUserID    string               `json:"readinessUserId,omitempty"`
	AssociationPending bool                 `json:"associationPending"`
	Association        *AssociationResponse `json:"association,omitempty"`
}

func (r *ActivationRequest) ToActivation() activation.Request {
	return activation.Request{
		VIN:          r.VIN,
		SerialNumber: r.SerialNumber,
		Qualifier:    r.Qualifier,
		HWVersion:    r.HWVersion,
		SWVersion:    r.SWVersion,
		ProductType:  r.ProductType,
		DeviceType:   r.DeviceType,
		IMEI:         r.IMEI,
		ICCID:        r.ICCID,
		MSISDN:       r.MSISDN,
		IMSI:         r.IMSI,
		BSSID:        r.BSSID,
		SSID:         r.SSID,
		AAD:          r.AAD,
	}
}

func (r *PSKActivationRequest) ToActivation() activation.PSKRequest {
	return activation.PSKRequest{
		ActivationID: r.ActivationID,
		PreSharedKey: r.PreSharedKey,
		DeviceType:   r.DeviceType,
	}
}

// NewActivationResponse maps an activation result to its JSON form.
func NewActivationResponse(result *interfaces.ActivationResult) ActivationResponse {
	if result.ProvisionedAlive() {
		return ActivationResponse{ProvisionedAlive: true}
	}
	return ActivationResponse{DeviceID: result.DeviceID, Passcode: result.Passcode}
}

func (r *FactoryRecord) ToDomain() (*interfaces.FactoryRecord, error) {
	record := &interfaces.FactoryRecord{
		SerialNumber: r.SerialNumber,
		IMEI:         r.IMEI,
		BSSID:        r.BSSID,
		VIN:          r.VIN,
		HWVersion:    r.HWVersion,
		SWVersion:    r.SWVersion,
		DeviceType:   r.DeviceType,
		ICCID:        r.ICCID,
		MSISDN:       r.MSISDN,
		IMSI:         r.IMSI,
		SSID:         r.SSID,
		Stolen:       r.Stolen,
		Faulty:       r.Faulty,
	}
	if r.State != "" {
		state, err := interfaces.ParseDeviceState(r.State)
		if err != nil {
			return nil, err
		}
		record.State = state
	}
	return record, nil
}

func NewFactoryRecord(r *interfaces.FactoryRecord) FactoryRecord {
	return FactoryRecord{
		ID:           r.ID,
		SerialNumber: r.SerialNumber,
		IMEI:         r.IMEI,
		BSSID:        r.BSSID,
		VIN:          r.VIN,
		HWVersion:    r.HWVersion,
		SWVersion:    r.SWVersion,
		DeviceType:   r.DeviceType,
		ICCID:        r.ICCID,
		MSISDN:       r.MSISDN,
		IMSI:         r.IMSI,
		SSID:         r.SSID,
		Stolen:       r.Stolen,
		Faulty:       r.Faulty,
		State:        r.State.String(),
	}
}

func NewAssociationResponse(a *interfaces.Association) *AssociationResponse {
	return &AssociationResponse{
		SerialNumber:      a.SerialNumber,
		VIN:               a.VIN,
		TransactionID:     a.TransactionID,
		TransactionStatus: string(a.TransactionStatus),
		UpdatedAt:         a.UpdatedAt,
	}
}

func NewDeviceStatusResponse(s *activation.DeviceStatus) DeviceStatusResponse {
	resp := DeviceStatusResponse{
		Factory:  NewFactoryRecord(s.Factory),
		DeviceID: s.DeviceID,
	}
	if s.Readiness != nil {
		resp.ReadinessUserID = s.Readiness.UserID
		resp.AssociationPending = s.Readiness.AssociationPending
	}
	if s.Association != nil {
		resp.Association = NewAssociationResponse(s.Association)
	}
	return resp
}

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusForError maps an error to an HTTP status code by its kind. Partial
// failures map to 502.
func StatusForError(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}

	var partial *interfaces.PartialFailureError
	if errors.As(err, &partial) {
		return http.StatusBadGateway
	}

	switch interfaces.KindOf(err) {
	case interfaces.KindValidationFailed:
		return http.StatusBadRequest
	case interfaces.KindResourceNotFound:
		return http.StatusNotFound
	case interfaces.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case interfaces.KindDuplicateActivation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the error body for err. Technical errors do not
// leak their message.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Kind: interfaces.KindOf(err).String(), Message: err.Error()}

	var partial *interfaces.PartialFailureError
	if errors.As(err, &partial) {
		resp.Kind = "partial_failure"
		resp.Message = "device state committed but registration did not complete"
		resp.DeviceID = partial.DeviceID
		return resp
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		resp.Kind = "request_error"
		return resp
	}

	if resp.Kind == interfaces.KindTechnical.String() {
		resp.Message = "internal error"
	}
	return resp
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes the error body for err with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	_ = WriteJSON(w, StatusForError(err), NewErrorResponse(err))
}

// DecodeJSON reads a size-limited JSON body into v. Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return nil
}
