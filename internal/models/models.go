package models

import "time"

const (
	RoleNormal = "normal"
	RoleAdmin  = "admin"
)

type User struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Name      string     `json:"name"`
	Picture   string     `json:"picture"`
	Role      string     `gorm:"not null;default:normal" json:"role"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// AuditLog rows are append-only.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	UserEmail *string   `gorm:"index" json:"user_email"`
	Action    string    `gorm:"index;not null" json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
}

type Requirement struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Category    string     `gorm:"not null" json:"category"`
	Requirement string     `gorm:"type:text;not null" json:"requirement"`
	Product     string     `json:"product"`
	DocLink     string     `json:"doc_link"`
	TenantLink  string     `json:"tenant_link"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	CreatedBy   string     `gorm:"not null" json:"created_by"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
	UpdatedBy   string     `json:"updated_by"`
}

type Document struct {
	ID           uint                  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string                `gorm:"not null" json:"name"`
	Description  string                `gorm:"type:text" json:"description"`
	OwnerID      uint                  `gorm:"index;not null" json:"-"`
	Owner        User                  `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT" json:"owner"`
	CreatedAt    time.Time             `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	Requirements []DocumentRequirement `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"requirements"`
}

func (Document) TableName() string { return "success_criteria_documents" }

// DocumentRequirement is a snapshot of a requirement inside one document.
// OriginalRequirementID is informational only and is never dereferenced.
type DocumentRequirement struct {
	ID                    uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID            uint   `gorm:"index;not null" json:"document_id"`
	Category              string `gorm:"not null" json:"category"`
	Requirement           string `gorm:"type:text;not null" json:"requirement"`
	Product               string `json:"product"`
	DocLink               string `json:"doc_link"`
	TenantLink            string `json:"tenant_link"`
	OriginalRequirementID *uint  `json:"original_requirement_id"`
	Order                 int    `gorm:"column:sort_order;not null" json:"order"`
}

func (DocumentRequirement) TableName() string { return "scd_requirements" }

// All lists every model in dependency order for migrations.
func All() []any {
	return []any{&User{}, &AuditLog{}, &Requirement{}, &Document{}, &DocumentRequirement{}}
}
