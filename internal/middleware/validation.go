package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apierrors "retailcli/internal/errors"
	api "retailcli/pkg/contracts/api/v1"
)

// dateLayout is the calendar-day format of the from and to parameters.
const dateLayout = "2006-01-02"

// Validator checks request contracts against their validate tags and reports
// failures with JSON field names.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(dateRangeOrder, api.DateRangeRequest{})
	return &Validator{validate: v}
}

// ValidateStruct returns an APIError listing every failed field, or nil.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}
	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

// dateRangeOrder rejects a from day after the to day.
func dateRangeOrder(sl validator.StructLevel) {
	dr := sl.Current().Interface().(api.DateRangeRequest)
	if dr.From == "" || dr.To == "" {
		return
	}
	from, errFrom := time.Parse(dateLayout, dr.From)
	to, errTo := time.Parse(dateLayout, dr.To)
	if errFrom == nil && errTo == nil && from.After(to) {
		sl.ReportError(dr.To, "to", "To", "gtefrom", "")
	}
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date in the form YYYY-MM-DD", field)
	case "gtefrom":
		return fmt.Sprintf("%s must not be before from", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// DecodeDashboardQuery reads the filter parameters of a dashboard request.
// Repeated parameters and comma separated lists are both accepted.
func DecodeDashboardQuery(values url.Values) api.DashboardQuery {
	return api.DashboardQuery{
		DateRangeRequest: api.DateRangeRequest{
			From: strings.TrimSpace(values.Get("from")),
			To:   strings.TrimSpace(values.Get("to")),
		},
		Preset:        strings.TrimSpace(values.Get("preset")),
		Locations:     multiValue(values, "location"),
		Categories:    multiValue(values, "category"),
		Subcategories: multiValue(values, "subcategory"),
	}
}

// DecodeSampleQuery reads a sample request. A missing limit gets the default;
// an unparseable one becomes zero and fails validation.
func DecodeSampleQuery(values url.Values) api.SampleQuery {
	q := api.SampleQuery{DashboardQuery: DecodeDashboardQuery(values), Limit: api.DefaultSampleLimit}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			n = 0
		}
		q.Limit = n
	}
	return q
}

func multiValue(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ContentTypeValidator rejects bodies that are not one of contentTypes.
func ContentTypeValidator(errorHandler *apierrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			contentType := r.Header.Get("Content-Type")
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type",
				map[string]interface{}{"content_type": contentType, "allowed": contentTypes},
			))
		})
	}
}
