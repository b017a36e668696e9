package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/auth"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON object into dst and validates it against its
// `validate` tags. Errors are apperror validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "body must contain a single JSON object")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperror.ValidationFailed(verrs[0].Field(), fieldMessage(verrs[0]))
		}
		return apperror.ValidationFailed("body", err.Error())
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	case "min", "max", "len":
		return fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// businessScope decides which business a request acts for. A business
// token always acts for itself; staff must name the business.
func businessScope(r *http.Request, requested string) (string, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("valid authentication required")
	}

	switch p.Role {
	case auth.RoleBusiness:
		if requested != "" && requested != p.Subject {
			return "", apperror.Forbidden("a business can only act on its own cards")
		}
		return p.Subject, nil
	case auth.RoleStaff:
		if requested == "" {
			return "", apperror.ValidationFailed("businessId", "businessId is required")
		}
		return requested, nil
	}
	return "", apperror.Forbidden("this account cannot perform this action")
}

func principal(r *http.Request) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	return p, nil
}
