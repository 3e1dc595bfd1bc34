// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ModuleCode identifies a banking domain returned by the classifier.
type ModuleCode string

// Module code constants.
const (
	ModuleAccounts      ModuleCode = "ACC"
	ModuleTransfers     ModuleCode = "TRF"
	ModuleCards         ModuleCode = "CARD"
	ModuleBills         ModuleCode = "BIL"
	ModuleLoans         ModuleCode = "LOAN"
	ModuleProfile       ModuleCode = "PROF"
	ModuleAnalytics     ModuleCode = "ANALYTICS"
	ModuleBeneficiaries ModuleCode = "BEN"
)

// ModuleCodes lists every module the classifier may return.
var ModuleCodes = []ModuleCode{
	ModuleAccounts,
	ModuleTransfers,
	ModuleCards,
	ModuleBills,
	ModuleLoans,
	ModuleProfile,
	ModuleAnalytics,
	ModuleBeneficiaries,
}

// Valid reports whether m belongs to the closed module vocabulary.
func (m ModuleCode) Valid() bool {
	for _, code := range ModuleCodes {
		if m == code {
			return true
		}
	}
	return false
}

// Flow is the classifier's coarse routing hint.
type Flow string

// Flow constants.
const (
	FlowQuery     Flow = "QUERY"
	FlowTransfer  Flow = "TRANSFER"
	FlowAnalytics Flow = "ANALYTICS"
)

// Question is a clarifying prompt for one missing parameter.
type Question struct {
	Parameter string `json:"parameter"`
	Question  string `json:"question"`
}

// Validation is the completion state the classifier reports for a request.
type Validation struct {
	MissingParameters []string   `json:"missing_parameters"`
	Questions         []Question `json:"questions,omitempty"`
	IsComplete        bool       `json:"is_complete"`
}

// UnmarshalJSON accepts missing parameters either as names or as objects
// carrying a name field.
func (v *Validation) UnmarshalJSON(data []byte) error {
	var raw struct {
		MissingParameters []json.RawMessage `json:"missing_parameters"`
		Questions         []Question        `json:"questions"`
		IsComplete        bool              `json:"is_complete"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.IsComplete = raw.IsComplete
	v.Questions = raw.Questions
	v.MissingParameters = make([]string, 0, len(raw.MissingParameters))
	for i, item := range raw.MissingParameters {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			v.MissingParameters = append(v.MissingParameters, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("missing_parameters[%d]: %w", i, err)
		}
		if obj.Name != "" {
			v.MissingParameters = append(v.MissingParameters, obj.Name)
		}
	}
	return nil
}

// SmartResponse is the conversational reply produced in smart mode.
type SmartResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ClassificationResponse is the contract produced by the NLP backend.
type ClassificationResponse struct {
	Entities          Entities       `json:"entities"`
	Filters           map[string]any `json:"filters,omitempty"`
	Validation        *Validation    `json:"validation,omitempty"`
	SmartResponse     *SmartResponse `json:"smart_response,omitempty"`
	ModuleCode        ModuleCode     `json:"moduleCode"`
	SubmoduleCode     string         `json:"submoduleCode"`
	Flow              Flow           `json:"flow,omitempty"`
	VisualizationType string         `json:"visualizationType,omitempty"`
	AnalyticsType     string         `json:"analyticsType,omitempty"`
	Error             string         `json:"error,omitempty"`
	RawText           string         `json:"raw_text"`
}

// UnmarshalJSON accepts both the flat shape (moduleCode, submoduleCode) and the
// nested shape (module.moduleCode, sub_module.submoduleCode) of the backend.
func (r *ClassificationResponse) UnmarshalJSON(data []byte) error {
	type plain ClassificationResponse
	var wire struct {
		plain
		Module *struct {
			ModuleCode ModuleCode `json:"moduleCode"`
		} `json:"module"`
		SubModule *struct {
			SubmoduleCode string `json:"submoduleCode"`
		} `json:"sub_module"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = ClassificationResponse(wire.plain)
	if r.ModuleCode == "" && wire.Module != nil {
		r.ModuleCode = wire.Module.ModuleCode
	}
	if r.SubmoduleCode == "" && wire.SubModule != nil {
		r.SubmoduleCode = wire.SubModule.SubmoduleCode
	}
	r.Error = ""
	if wire.Error != nil {
		r.Error = *wire.Error
	}
	r.ModuleCode = ModuleCode(strings.TrimSpace(string(r.ModuleCode)))
	r.SubmoduleCode = strings.TrimSpace(r.SubmoduleCode)
	if r.Entities == nil {
		r.Entities = Entities{}
	}
	return nil
}

// IsError reports whether the response must be treated as a classification
// failure: nil, error set, or either code missing.
func (r *ClassificationResponse) IsError() bool {
	return r == nil || r.Error != "" || r.ModuleCode == "" || r.SubmoduleCode == ""
}

// Clone returns a copy whose entities and filters can be mutated independently.
func (r *ClassificationResponse) Clone() *ClassificationResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Entities = r.Entities.Clone()
	if r.Filters != nil {
		c.Filters = make(map[string]any, len(r.Filters))
		for k, v := range r.Filters {
			c.Filters[k] = v
		}
	}
	if r.Validation != nil {
		v := *r.Validation
		v.MissingParameters = append([]string(nil), r.Validation.MissingParameters...)
		v.Questions = append([]Question(nil), r.Validation.Questions...)
		c.Validation = &v
	}
	if r.SmartResponse != nil {
		s := *r.SmartResponse
		c.SmartResponse = &s
	}
	return &c
}
