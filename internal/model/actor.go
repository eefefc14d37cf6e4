package model

// Capability описывает право на выполнение операции.
type Capability int

const (
	CapVerifyPayments Capability = iota
	CapViewAnyPurchase
	CapManageCourses
	CapDeleteCourses
	CapManageEvents
	CapViewRegistrations
	CapModerateReviews
)

var roleCapabilities = map[Role][]Capability{
	RoleStudent:    nil,
	RoleInstructor: {CapManageCourses},
	RoleAdmin: {
		CapVerifyPayments,
		CapViewAnyPurchase,
		CapManageCourses,
		CapDeleteCourses,
		CapManageEvents,
		CapViewRegistrations,
		CapModerateReviews,
	},
}

// Actor описывает аутентифицированного пользователя, от имени которого выполняется операция.
type Actor struct {
	UserID int64
	Role   Role
}

// Can сообщает, есть ли у пользователя указанное право.
func (a Actor) Can(c Capability) bool {
	for _, have := range roleCapabilities[a.Role] {
		if have == c {
			return true
		}
	}
	return false
}
