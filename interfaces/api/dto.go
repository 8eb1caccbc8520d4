package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/felixgeelhaar/mutaflow/application"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// CreateRequestBody files a draft for the authenticated agent.
type CreateRequestBody struct {
	Kind             string   `json:"kind" validate:"omitempty,oneof=ORDINAIRE STRATEGIQUE"`
	Motive           string   `json:"motive" validate:"max=4000"`
	DesiredPostID    string   `json:"desired_post_id" validate:"max=128"`
	DesiredLocations []string `json:"desired_locations" validate:"max=20,dive,required,max=200"`
	Name             string   `json:"name" validate:"max=200"`
	Matricule        string   `json:"matricule" validate:"max=64"`
}

func (b CreateRequestBody) input() application.CreateInput {
	return application.CreateInput{
		Kind:          mutation.Kind(b.Kind),
		Motive:        b.Motive,
		DesiredPostID: b.DesiredPostID,
		Locations:     b.DesiredLocations,
		Name:          b.Name,
		Matricule:     b.Matricule,
	}
}

// PublicRequestBody is the unauthenticated submission form.
type PublicRequestBody struct {
	Kind             string   `json:"kind" validate:"omitempty,oneof=ORDINAIRE STRATEGIQUE"`
	Motive           string   `json:"motive" validate:"required,max=4000"`
	DesiredPostID    string   `json:"desired_post_id" validate:"max=128"`
	DesiredLocations []string `json:"desired_locations" validate:"required,min=1,max=20,dive,required,max=200"`
	Name             string   `json:"name" validate:"required,max=200"`
	Matricule        string   `json:"matricule" validate:"required,max=64"`
	ServiceID        string   `json:"service_id" validate:"max=128"`
	Email            string   `json:"email" validate:"omitempty,email"`
	Phone            string   `json:"phone" validate:"max=32"`
}

func (b PublicRequestBody) input() application.CreateInput {
	return application.CreateInput{
		Kind:          mutation.Kind(b.Kind),
		Motive:        b.Motive,
		DesiredPostID: b.DesiredPostID,
		Locations:     b.DesiredLocations,
		Public: &mutation.AgentSnapshot{
			Name:      b.Name,
			Matricule: b.Matricule,
			ServiceID: b.ServiceID,
			Email:     b.Email,
			Phone:     b.Phone,
		},
	}
}

// DraftEditBody changes the fields that are present.
type DraftEditBody struct {
	Motive           *string  `json:"motive" validate:"omitempty,max=4000"`
	DesiredPostID    *string  `json:"desired_post_id" validate:"omitempty,max=128"`
	DesiredLocations []string `json:"desired_locations" validate:"omitempty,max=20,dive,required,max=200"`
}

func (b DraftEditBody) edit() application.DraftEdit {
	return application.DraftEdit{
		Motive:           b.Motive,
		DesiredPostID:    b.DesiredPostID,
		DesiredLocations: b.DesiredLocations,
	}
}

// DecisionBody records a reviewer verdict. A blank comment is left to the
// engine so it surfaces as missing_comment.
type DecisionBody struct {
	Outcome string `json:"outcome" validate:"required,oneof=APPROVE REJECT"`
	Comment string `json:"comment" validate:"max=4000"`
}

// IneligibleBody closes a request as ineligible.
type IneligibleBody struct {
	Reason string `json:"reason" validate:"max=4000"`
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    "invalid_json",
			Message: fmt.Sprintf("invalid json: %v", err),
		}})
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Code: "invalid_body", Message: err.Error()}})
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonName(fe.Namespace())] = ruleMessage(fe)
	}
	writeFieldErrors(w, fields)
	return false
}

// jsonName turns "CreateRequestBody.DesiredLocations[0]" into
// "desired_locations[0]".
func jsonName(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		namespace = namespace[i+1:]
	}
	var b strings.Builder
	for i, c := range namespace {
		if c >= 'A' && c <= 'Z' {
			if i > 0 && namespace[i-1] != '.' && namespace[i-1] != '[' {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "email":
		return "must be an email address"
	}
	return "failed " + fe.Tag()
}
