package models

// Customer is a fleet customer as listed to managers.
type Customer struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active,omitempty"`
}

// ManagerSession is the manager-side session info returned by session.info.
type ManagerSession struct {
	Manager            string `json:"manager,omitempty"`
	Username           string `json:"username,omitempty"`
	SelectedCustomerID *int64 `json:"customer_id,omitempty"`
	SelectedCustomer   string `json:"customer_name,omitempty"`
}

// ModuleOverview is one tracking module row; extra backend columns are kept.
type ModuleOverview map[string]any

// ModuleDateColumns are the columns of a module overview formatted with
// the session's date/time settings.
var ModuleDateColumns = []string{
	"module_registered",
	"object_registered",
	"last_data_received",
	"object_deleted_at",
}
