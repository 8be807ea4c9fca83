package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	// Return on 'TagName' json tag instead of struct name
	// Look at documentation of 'RegisterTagNameFunc' for more details
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		// skip if tag key says it should be ignored
		if name == "-" {
			return ""
		}
		return name
	})
}

type Struct any

// ErrorResponse mirrors the API error shape: {"detail": "message"}
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationResponse lists every rejected field: {"detail": [{"loc": ["body", "email"], ...}]}
type ValidationResponse struct {
	Detail []FieldError `json:"detail"`
}

type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// Error renders {"detail": message} with the code
func Error(w http.ResponseWriter, message string, code int) {
	JSONWithStatus(w, ErrorResponse{Detail: message}, code)
}

// Unauthorized also tells the client which scheme to use
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	Error(w, message, http.StatusUnauthorized)
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	fe := FieldError{Loc: []string{"body"}, Type: "json_invalid"}

	// Try to provide more specific error message based on error type
	switch err := err.(type) {
	case *json.UnmarshalTypeError:
		fe.Loc = append(fe.Loc, err.Field)
		fe.Msg = fmt.Sprintf("Invalid data type for field '%s'", err.Field)
		fe.Type = "type_error"
	default:
		fe.Msg = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, ValidationResponse{Detail: []FieldError{fe}}, http.StatusUnprocessableEntity)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ValidationResponse{Detail: make([]FieldError, 0, len(errs))}

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "Field required"
		case "email":
			message = "Value is not a valid email address"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		default:
			message = "Invalid value"
		}

		response.Detail = append(response.Detail, FieldError{
			Loc:  []string{"body", fieldError.Field()},
			Msg:  message,
			Type: fieldError.Tag(),
		})
	}

	JSONWithStatus(w, response, http.StatusUnprocessableEntity)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(r.Body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		// pretty sure cast will be ok cause expecting T is valid struct
		errs := err.(validator.ValidationErrors)
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// JSONWithStatus sends data as json and enforces status code
func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
