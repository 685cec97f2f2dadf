package models

type ClientStatus string

const (
	ClientProspect ClientStatus = "prospect"
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
	ClientArchived ClientStatus = "archived"
)

type Client struct {
	TenantModel
	Name     string       `gorm:"not null" json:"name"`
	Industry string       `json:"industry"`
	Website  string       `json:"website"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone"`
	Address  string       `json:"address"`
	Status   ClientStatus `gorm:"not null;size:16;index" json:"status"`
	OwnerID  *uint        `json:"owner_id"`
}

type Contact struct {
	TenantModel
	ClientID  uint   `gorm:"not null;index" json:"client_id"`
	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Title     string `json:"title"`
	IsPrimary bool   `gorm:"not null;default:false" json:"is_primary"`
}

func (c Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
