package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	RegisterJSONFieldNames(v)
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		report := sl.Current().Interface().(models.LocationReport)
		if report.GPS == nil {
			sl.ReportError(report.GPS, "gps", "GPS", "required", "")
		}
	}, models.LocationReport{})
	return v
}

// RegisterJSONFieldNames makes a validator report fields by their json names
func RegisterJSONFieldNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationErrorFrom converts decoding and validation failures into a
// ValidationError. Field paths are prefixed with prefix when it is set.
// Errors of any other type are returned unchanged.
func ValidationErrorFrom(err error, prefix string) error {
	if err == nil {
		return nil
	}

	var fields []FieldError
	var validationErrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			fields = append(fields, FieldError{
				Field:      joinPath(prefix, trimRoot(fe.Namespace())),
				Constraint: constraintOf(fe),
				Message:    messageFor(fe),
			})
		}
	case errors.As(err, &typeErr):
		fields = append(fields, FieldError{
			Field:      joinPath(prefix, typeErr.Field),
			Constraint: "type",
			Message:    fmt.Sprintf("must be %s, got %s", typeName(typeErr.Type), typeErr.Value),
		})
	case errors.As(err, &syntaxErr):
		fields = append(fields, FieldError{
			Field:      fallbackField(prefix),
			Constraint: "json",
			Message:    "malformed JSON",
		})
	default:
		return err
	}

	return NewValidationError(fields...)
}

// DecodeTelemetry decodes and validates a telemetry payload for its data type
func DecodeTelemetry(dataType models.TelemetryDataType, raw json.RawMessage) (models.TelemetryReport, error) {
	report, err := models.DecodeTelemetryReport(dataType, raw)
	if err != nil {
		if errors.Is(err, models.ErrUnknownDataType) {
			return nil, NewValidationError(FieldError{
				Field:      "data_type",
				Constraint: "oneof=sensor location status heartbeat",
				Message:    fmt.Sprintf("unsupported data type %q", dataType),
			})
		}
		return nil, ValidationErrorFrom(err, "payload")
	}

	if err := validate.Struct(report); err != nil {
		return nil, ValidationErrorFrom(err, "payload")
	}
	return report, nil
}

// DecodeCommandPayload decodes and validates a command payload for its type
func DecodeCommandPayload(commandType models.CommandType, raw json.RawMessage) (models.CommandPayload, error) {
	payload, err := models.DecodeCommandPayload(commandType, raw)
	if err != nil {
		if errors.Is(err, models.ErrUnknownCommandType) {
			return nil, NewValidationError(FieldError{
				Field:      "command_type",
				Constraint: "oneof=locate identify firmware_update reset configure",
				Message:    fmt.Sprintf("unsupported command type %q", commandType),
			})
		}
		return nil, ValidationErrorFrom(err, "payload")
	}

	if err := validate.Struct(payload); err != nil {
		return nil, ValidationErrorFrom(err, "payload")
	}
	return payload, nil
}

func trimRoot(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func joinPath(prefix, field string) string {
	switch {
	case prefix == "":
		return fallbackField(field)
	case field == "":
		return prefix
	default:
		return prefix + "." + field
	}
}

func fallbackField(field string) string {
	if field == "" {
		return "body"
	}
	return field
}

func constraintOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid", "uuid4":
		return "must be a UUID"
	default:
		return "failed " + constraintOf(fe)
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Struct, reflect.Map:
		return "an object"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return t.String()
	}
}
