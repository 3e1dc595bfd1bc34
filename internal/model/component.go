package model

// ComponentName names a UI module the resolver is permitted to select.
type ComponentName string

// Component names.
const (
	ComponentAccounts      ComponentName = "AccountsModule"
	ComponentTransfers     ComponentName = "TransfersModule"
	ComponentCards         ComponentName = "CardsModule"
	ComponentBeneficiaries ComponentName = "BeneficiariesModule"
	ComponentBills         ComponentName = "BillsModule"
	ComponentLoans         ComponentName = "LoansModule"
	ComponentProfile       ComponentName = "ProfileModule"
	ComponentAnalytics     ComponentName = "AnalyticsModule"
	ComponentError         ComponentName = "ErrorMessage"
)

// ComponentNames is the closed set of renderable components.
var ComponentNames = []ComponentName{
	ComponentAccounts,
	ComponentTransfers,
	ComponentCards,
	ComponentBeneficiaries,
	ComponentBills,
	ComponentLoans,
	ComponentProfile,
	ComponentAnalytics,
	ComponentError,
}

// Valid reports whether c is a known component.
func (c ComponentName) Valid() bool {
	for _, name := range ComponentNames {
		if c == name {
			return true
		}
	}
	return false
}

// ActionType classifies what a submodule does to banking data.
type ActionType string

// Action types.
const (
	ActionRead   ActionType = "READ"
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Resolution is the render instruction produced for a classification.
type Resolution struct {
	Config            map[string]any `json:"config"`
	Component         ComponentName  `json:"component"`
	Strategy          string         `json:"strategy,omitempty"`
	MissingParameters []string       `json:"missingParameters,omitempty"`
}

// IsError reports whether the resolution renders the error component.
func (r Resolution) IsError() bool {
	return r.Component == ComponentError
}
