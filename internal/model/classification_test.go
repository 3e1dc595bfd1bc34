package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationResponse_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantModule    ModuleCode
		wantSubmodule string
		wantMissing   []string
		wantError     bool
	}{
		{
			name:          "flat shape",
			input:         `{"moduleCode":"ACC","submoduleCode":"ACC_BALANCE","entities":{}}`,
			wantModule:    ModuleAccounts,
			wantSubmodule: "ACC_BALANCE",
		},
		{
			name:          "nested shape",
			input:         `{"module":{"moduleCode":"TRF"},"sub_module":{"submoduleCode":"TRF_IMMEDIATE"},"entities":{"amount":500}}`,
			wantModule:    ModuleTransfers,
			wantSubmodule: "TRF_IMMEDIATE",
		},
		{
			name:          "missing parameters as objects",
			input:         `{"moduleCode":"TRF","submoduleCode":"TRF_IMMEDIATE","validation":{"is_complete":false,"missing_parameters":[{"name":"beneficiary"},"amount"]}}`,
			wantModule:    ModuleTransfers,
			wantSubmodule: "TRF_IMMEDIATE",
			wantMissing:   []string{"beneficiary", "amount"},
		},
		{
			name:      "error response",
			input:     `{"error":"model timeout","entities":{}}`,
			wantError: true,
		},
		{
			name:      "null error with missing codes",
			input:     `{"error":null,"moduleCode":"ACC"}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var resp ClassificationResponse
			require.NoError(t, json.Unmarshal([]byte(tt.input), &resp))

			assert.Equal(t, tt.wantError, resp.IsError())
			if tt.wantError {
				return
			}
			assert.Equal(t, tt.wantModule, resp.ModuleCode)
			assert.Equal(t, tt.wantSubmodule, resp.SubmoduleCode)
			assert.NotNil(t, resp.Entities)
			if tt.wantMissing != nil {
				require.NotNil(t, resp.Validation)
				assert.Equal(t, tt.wantMissing, resp.Validation.MissingParameters)
				assert.False(t, resp.Validation.IsComplete)
			}
		})
	}
}

func TestClassificationResponse_IsError(t *testing.T) {
	var nilResp *ClassificationResponse
	assert.True(t, nilResp.IsError())

	resp := &ClassificationResponse{ModuleCode: ModuleAccounts, SubmoduleCode: "ACC_LIST", Error: "boom"}
	assert.True(t, resp.IsError(), "error wins over valid codes")

	resp.Error = ""
	assert.False(t, resp.IsError())
}

func TestClassificationResponse_Clone(t *testing.T) {
	orig := &ClassificationResponse{
		ModuleCode:    ModuleTransfers,
		SubmoduleCode: "TRF_IMMEDIATE",
		Entities:      Entities{"amount": 500.0},
		Validation:    &Validation{MissingParameters: []string{"beneficiary"}},
	}

	c := orig.Clone()
	c.Entities["amount"] = 10.0
	c.Validation.MissingParameters[0] = "amount"

	assert.Equal(t, 500.0, orig.Entities["amount"])
	assert.Equal(t, "beneficiary", orig.Validation.MissingParameters[0])
}

func TestEntities_Decimal(t *testing.T) {
	tests := []struct {
		value  any
		name   string
		want   string
		wantOK bool
	}{
		{name: "json number", value: 500.0, want: "500", wantOK: true},
		{name: "numeric string", value: "1,250.50", want: "1250.5", wantOK: true},
		{name: "currency string", value: "$75", want: "75", wantOK: true},
		{name: "garbage", value: "lots", wantOK: false},
		{name: "nil", value: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Entities{"amount": tt.value}.Decimal("amount")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestEntities_HasAndMerge(t *testing.T) {
	e := Entities{"recipient": "  ", "amount": 0.0}
	assert.False(t, e.Has("recipient"))
	assert.True(t, e.Has("amount"))
	assert.False(t, e.Has("absent"))

	merged := e.Merge(map[string]any{"recipient": "Alice"})
	assert.Equal(t, "Alice", merged.String("recipient"))
	assert.Equal(t, "  ", e["recipient"], "merge must not mutate the receiver")

	key, val := merged.First("beneficiaryId", "recipient")
	assert.Equal(t, "recipient", key)
	assert.Equal(t, "Alice", val)
}

func TestAccount_MatchesType(t *testing.T) {
	acc := Account{AccountType: "SAV", AccountTypeName: "Savings Account"}

	assert.True(t, acc.MatchesType("Savings"))
	assert.True(t, acc.MatchesType("sav"))
	assert.True(t, acc.MatchesType("savings account"))
	assert.False(t, acc.MatchesType("Checking"))
	assert.False(t, acc.MatchesType(""))
}

func TestComponentName_Valid(t *testing.T) {
	for _, c := range ComponentNames {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, ComponentName("WidgetModule").Valid())
	assert.False(t, ModuleCode("XYZ").Valid())
	assert.True(t, ModuleAnalytics.Valid())
}

func TestTransferKindFor(t *testing.T) {
	assert.Equal(t, TransferDomestic, TransferKindFor("TRF_DOMESTIC"))
	assert.Equal(t, TransferInternational, TransferKindFor("TRF_INTL"))
	assert.Equal(t, TransferSchedule, TransferKindFor("TRF_SCHEDULE"))
	assert.Equal(t, TransferImmediate, TransferKindFor("TRF_IMMEDIATE"))
}
