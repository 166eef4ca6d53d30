package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"chatdesk/pkg/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError carries text that is safe to show the client.
type requestError string

func (e requestError) Error() string { return string(e) }

// MessageRequest is the body of POST message on both prefixes. sender_type
// is accepted for compatibility; the route decides the actual sender type.
type MessageRequest struct {
	Content        string   `json:"content" validate:"max=10000"`
	MediaURL       string   `json:"media_url" validate:"max=2048"`
	SenderID       types.ID `json:"sender_id" validate:"required"`
	SenderType     string   `json:"sender_type" validate:"omitempty,oneof=user admin"`
	ConversationID types.ID `json:"conversation_id"`
	CustomerID     types.ID `json:"customer_id"`
}

type PriorityRequest struct {
	Priority string `json:"priority" validate:"required"`
}

const maxRequestBody = 1 << 20

// decodeBody reads one JSON object from r and validates it.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, types.ErrInvalidID) {
			return requestError("Invalid identifier")
		}
		return requestError("Invalid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return requestError("Invalid request")
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return requestError("Missing required fields")
		}
	}
	return requestError(fmt.Sprintf("Invalid value for %s", verrs[0].Field()))
}
