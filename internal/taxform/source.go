package taxform

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a3tai/taxform-filler/internal/mapping"
	"github.com/a3tai/taxform-filler/internal/records"
)

// Source is the input of Generate: either FormData or RecordData
type Source interface {
	isSource()
}

// FormData names a form directly. Data may be raw JSON ([]byte,
// json.RawMessage, string), an already decoded map, or a Payload.
type FormData struct {
	Form string
	Data any
}

// RecordData is a stored form record; its form is routed by record id and
// then by record name
type RecordData struct {
	Record *records.Record
}

func (FormData) isSource()   {}
func (RecordData) isSource() {}

// normalize turns a Source into a form name and payload
func normalize(reg *mapping.Registry, src Source) (string, *Payload, error) {
	switch s := src.(type) {
	case FormData:
		p, err := payloadOf(s.Data)
		return s.Form, p, err

	case RecordData:
		if s.Record == nil {
			return "", nil, newError(KindInvalidPayload, "", "record is nil", nil)
		}
		form, ok := reg.FormForID(s.Record.ID)
		if !ok {
			form, ok = reg.FormForName(s.Record.Name)
		}
		if !ok {
			return "", nil, newError(KindUnknownForm, s.Record.Name,
				fmt.Sprintf("no template registered for form id %d", s.Record.ID), nil)
		}
		if s.Record.Data == nil {
			return form, nil, newError(KindInvalidPayload, form, "record has no data", nil)
		}
		p, err := PayloadFromMap(s.Record.Data)
		var terr *Error
		if errors.As(err, &terr) && terr.Form == "" {
			terr.Form = form
		}
		return form, p, err

	default:
		return "", nil, newError(KindInvalidPayload, "", fmt.Sprintf("unsupported source %T", src), nil)
	}
}

func payloadOf(data any) (*Payload, error) {
	switch d := data.(type) {
	case *Payload:
		if d == nil {
			return nil, newError(KindInvalidPayload, "", "payload is nil", nil)
		}
		return d, nil
	case Payload:
		return &d, nil
	case []byte:
		return ParsePayload(d)
	case json.RawMessage:
		return ParsePayload(d)
	case string:
		return ParsePayload([]byte(d))
	default:
		return PayloadFromMap(data)
	}
}
