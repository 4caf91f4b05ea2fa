package activation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// Request is a qualifier-based activation attempt.
type Request struct {
	VIN          string `field:"vin" validate:"required"`
	SerialNumber string `field:"serialNumber" validate:"required_without_all=IMEI BSSID"`
	Qualifier    string `field:"qualifier" validate:"required"`
	HWVersion    string `field:"hwVersion"`
	SWVersion    string `field:"swVersion"`
	ProductType  string `field:"productType" validate:"required"`
	DeviceType   string `field:"deviceType"`
	IMEI         string `field:"imei"`
	ICCID        string `field:"iccid"`
	MSISDN       string `field:"msisdn"`
	IMSI         string `field:"imsi"`
	BSSID        string `field:"bssid"`
	SSID         string `field:"ssid"`
	AAD          string `field:"aad"`
}

// Lookup returns the factory record identifiers of the request.
func (r *Request) Lookup() interfaces.FactoryLookup {
	return interfaces.FactoryLookup{
		SerialNumber: r.SerialNumber,
		IMEI:         r.IMEI,
		BSSID:        r.BSSID,
	}
}

// PSKRequest is a pre-shared-key activation attempt. A blank PreSharedKey is
// a key mismatch, not a validation failure.
type PSKRequest struct {
	ActivationID string `field:"activationId" validate:"required"`
	PreSharedKey string `field:"preSharedKey"`
	DeviceType   string `field:"deviceType"`
}

// DeactivateRequest is an administrative deactivation.
type DeactivateRequest struct {
	SerialNumber string `field:"serialNumber" validate:"required"`
	Actor        string `field:"actor"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("field"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// ValidateRequest trims every field in place and checks the request against
// the validation profile in cfg. All failures wrap interfaces.ErrValidation.
func ValidateRequest(cfg Config, req *Request) error {
	trimStrings(req)

	if err := validateStruct(req); err != nil {
		return err
	}
	if err := cryptoutils.ValidateAAD(req.AAD); err != nil {
		return err
	}
	return validateDeviceType(cfg, req.DeviceType)
}

// ValidatePSKRequest is the pre-shared-key counterpart of ValidateRequest.
func ValidatePSKRequest(cfg Config, req *PSKRequest) error {
	trimStrings(req)

	if err := validateStruct(req); err != nil {
		return err
	}
	return validateDeviceType(cfg, req.DeviceType)
}

func validateDeviceType(cfg Config, deviceType string) error {
	if !cfg.DeviceValidationEnabled {
		return nil
	}
	if deviceType == "" {
		return fmt.Errorf("%w: deviceType is required", interfaces.ErrValidation)
	}
	if !cfg.DeviceTypeAllowed(deviceType) {
		return fmt.Errorf("%w: %s", interfaces.ErrDeviceTypeNotAllowed, deviceType)
	}
	return nil
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "required_without_all":
			msgs = append(msgs, "one of serialNumber, imei or bssid is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", interfaces.ErrValidation, strings.Join(msgs, "; "))
}

// trimStrings trims all exported string fields of the struct pointed to by s.
func trimStrings(s any) {
	v := reflect.ValueOf(s).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
