package hubspot

import (
	"strconv"
	"strings"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// associationCategoryDefined is the category of the built-in association types.
const associationCategoryDefined = "HUBSPOT_DEFINED"

type batchInput struct {
	Properties         map[string]string `json:"properties"`
	ObjectWriteTraceID string            `json:"objectWriteTraceId,omitempty"`
}

type batchCreateRequest struct {
	Inputs []batchInput `json:"inputs"`
}

type objectResult struct {
	ID                 string            `json:"id"`
	ObjectWriteTraceID string            `json:"objectWriteTraceId,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
}

type standardError struct {
	Status   string              `json:"status"`
	Category string              `json:"category"`
	Message  string              `json:"message"`
	Context  map[string][]string `json:"context,omitempty"`
}

type batchCreateResponse struct {
	Status    string          `json:"status"`
	Results   []objectResult  `json:"results"`
	Errors    []standardError `json:"errors,omitempty"`
	NumErrors int             `json:"numErrors,omitempty"`
}

type associationTypeRef struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

type errorResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CorrelationID string `json:"correlationId"`
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type searchResponse struct {
	Total   int            `json:"total"`
	Results []objectResult `json:"results"`
}

// traceID tags an input with its record index so that results can be matched back.
func traceID(index int) string {
	return strconv.Itoa(index)
}

func parseTraceID(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	return i, err == nil
}

// properties converts a record into the property map sent to the CRM.
// With a mapping only mapped columns are sent, renamed; without one every non-empty field is sent.
func properties(r *model.Record, mapping map[string]string) map[string]string {
	props := make(map[string]string, len(r.Fields))
	for col := range r.Fields {
		v := r.Get(col)
		if v == "" {
			continue
		}
		if len(mapping) == 0 {
			props[col] = v
			continue
		}
		if prop, ok := mapping[col]; ok && prop != "" {
			props[prop] = v
		}
	}
	return props
}
