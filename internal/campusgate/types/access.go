package types

// AccessCheckRequest is what a gate reader sends for each scan.
type AccessCheckRequest struct {
	RFIDNumber string `json:"rfid_number"`
	Location   string `json:"location,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`

	// RemoteIP is filled by the HTTP layer, never decoded from the body.
	RemoteIP string `json:"-"`
}

type AccessCheckResponse struct {
	AccessGranted  bool    `json:"access_granted"`
	Message        string  `json:"message"`
	DenialReason   string  `json:"denial_reason,omitempty"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	LogID          string  `json:"log_id,omitempty"`
	Person         *Person `json:"person,omitempty"`
}

// Person is the holder payload returned on a grant.  Only the fields that
// belong to the holder's kind are set.
type Person struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name,omitempty"`
	Surname    string `json:"surname,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`

	// student
	RegistrationNumber string `json:"registration_number,omitempty"`
	Program            string `json:"program,omitempty"`
	Status             string `json:"status,omitempty"`
	Email              string `json:"email,omitempty"`

	// staff
	StaffNumber string `json:"staff_number,omitempty"`
	Position    string `json:"position,omitempty"`

	// security
	EmployeeID  string `json:"employee_id,omitempty"`
	BadgeNumber string `json:"badge_number,omitempty"`
}

// AccessLog is the admin-facing view of an audit entry.
type AccessLog struct {
	LogID          string `json:"log_id"`
	RFIDNumber     string `json:"rfid_number"`
	CardID         string `json:"card_id,omitempty"`
	Decision       string `json:"decision"`
	DenialReason   string `json:"denial_reason,omitempty"`
	Location       string `json:"location,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	RemoteIP       string `json:"ip_address,omitempty"`
	Timestamp      string `json:"timestamp"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

type AccessLogList struct {
	Count  int         `json:"count"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Logs   []AccessLog `json:"logs"`
}

type CardStateResponse struct {
	RFIDNumber string `json:"rfid_number"`
	IsActive   bool   `json:"is_active"`
	Message    string `json:"message"`
}
