package model

// UserRole 门户角色
type UserRole string

const (
	RoleEmployee UserRole = "employee" // 门店员工：提交交班包
	RoleManager  UserRole = "manager"  // 运营经理：提交日/周/月报
	RoleClient   UserRole = "client"   // 客户：只读查看本门店提交
)

// Valid 是否为已知角色
func (r UserRole) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleClient:
		return true
	}
	return false
}

// User 门户账号
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:255;uniqueIndex;not null" json:"email"` // 统一小写存储
	Password string   `gorm:"size:255;not null" json:"-"`                 // bcrypt 哈希
	Role     UserRole `gorm:"size:20;index;not null" json:"role"`

	StoreID int64  `gorm:"index;not null" json:"store_id"`
	Store   *Store `gorm:"foreignKey:StoreID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"store,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// StoreNumber 所属门店编号，未预加载时为空
func (u *User) StoreNumber() string {
	if u.Store == nil {
		return ""
	}
	return u.Store.Number
}

// LandingPath 登录后的落地页
func (u *User) LandingPath() string {
	if u.Role == RoleClient {
		return "/reports"
	}
	return "/dashboard"
}
