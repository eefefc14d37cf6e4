// Package model содержит доменные сущности сервиса coursemart.
package model

import "time"

// Role описывает роль пользователя.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid сообщает, входит ли роль в закрытый набор ролей.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя платформы.
type User struct {
	ID              int64
	FirstName       string
	LastName        string
	Email           string
	PasswordHash    []byte
	Phone           string
	Role            Role
	Newsletter      bool
	IsActive        bool
	LastLogin       *time.Time
	EnrolledCourses []Enrollment
	CreatedAt       time.Time
}

// Enrollment описывает доступ пользователя к курсу и прогресс прохождения.
type Enrollment struct {
	CourseID   int64
	EnrolledAt time.Time
	Progress   int
	Completed  bool
}

// IsEnrolled сообщает, есть ли у пользователя запись о зачислении на курс.
func (u *User) IsEnrolled(courseID int64) bool {
	for _, e := range u.EnrolledCourses {
		if e.CourseID == courseID {
			return true
		}
	}
	return false
}

// EnrolledCourse дополняет зачисление данными курса для личного кабинета.
type EnrolledCourse struct {
	Enrollment
	Title     string
	Thumbnail string
	Category  CourseCategory
}

// CourseCategory описывает категорию курса.
type CourseCategory string

const (
	CourseCategoryProgramming CourseCategory = "programacion"
	CourseCategoryDesign      CourseCategory = "diseno"
	CourseCategoryBusiness    CourseCategory = "negocios"
	CourseCategoryMarketing   CourseCategory = "marketing"
	CourseCategoryData        CourseCategory = "data"
	CourseCategoryOther       CourseCategory = "otro"
)

// CourseLevel описывает уровень сложности курса.
type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "principiante"
	CourseLevelIntermediate CourseLevel = "intermedio"
	CourseLevelAdvanced     CourseLevel = "avanzado"
)

// Course описывает курс каталога. Цена хранится в центах.
type Course struct {
	ID             int64
	Title          string
	Description    string
	Thumbnail      string
	Category       CourseCategory
	Level          CourseLevel
	PriceCents     int64
	Instructor     string
	Duration       string
	TotalMinutes   int
	Featured       bool
	IsActive       bool
	StudentsCount  int
	StudentsActive int
	RatingAverage  float64
	RatingCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CourseFilter задаёт параметры выборки каталога.
type CourseFilter struct {
	Category      CourseCategory
	Level         CourseLevel
	MinPriceCents *int64
	MaxPriceCents *int64
	Featured      *bool
	Search        string
	Limit         int
}

// EventCategory описывает категорию события.
type EventCategory string

const (
	EventCategoryTechnology  EventCategory = "tecnologia"
	EventCategoryBusiness    EventCategory = "negocios"
	EventCategoryMarketing   EventCategory = "marketing"
	EventCategoryDesign      EventCategory = "diseno"
	EventCategoryProgramming EventCategory = "programacion"
	EventCategoryOther       EventCategory = "otro"
)

// EventStatus описывает стадию проведения события.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusLive      EventStatus = "live"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event описывает событие с ограниченным числом мест.
type Event struct {
	ID            int64
	Title         string
	Description   string
	Date          time.Time
	Speaker       string
	SpeakerBio    string
	Category      EventCategory
	MaxCapacity   int
	Registrations int
	IsFree        bool
	PriceCents    int64
	MeetingLink   string
	Status        EventStatus
	IsActive      bool
	CreatedAt     time.Time
}

// IsFull сообщает, что свободных мест не осталось.
func (e *Event) IsFull() bool {
	return e.Registrations >= e.MaxCapacity
}

// RegistrationStatus описывает статус регистрации на событие.
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusAttended   RegistrationStatus = "attended"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
	RegistrationStatusNoShow     RegistrationStatus = "no-show"
)

// Attendee содержит данные участника, указанные при регистрации.
type Attendee struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Company    string
	Role       string
	Motivation string
	Newsletter bool
	UserID     *int64
}

// EventRegistration описывает регистрацию участника на событие.
type EventRegistration struct {
	ID        int64
	EventID   int64
	Attendee  Attendee
	Status    RegistrationStatus
	Attended  bool
	CreatedAt time.Time
}

// Valid сообщает, входит ли категория в закрытый набор.
func (c CourseCategory) Valid() bool {
	switch c {
	case CourseCategoryProgramming, CourseCategoryDesign, CourseCategoryBusiness,
		CourseCategoryMarketing, CourseCategoryData, CourseCategoryOther:
		return true
	}
	return false
}

// Valid сообщает, входит ли уровень в закрытый набор.
func (l CourseLevel) Valid() bool {
	switch l {
	case CourseLevelBeginner, CourseLevelIntermediate, CourseLevelAdvanced:
		return true
	}
	return false
}

// Valid сообщает, входит ли категория события в закрытый набор.
func (c EventCategory) Valid() bool {
	switch c {
	case EventCategoryTechnology, EventCategoryBusiness, EventCategoryMarketing,
		EventCategoryDesign, EventCategoryProgramming, EventCategoryOther:
		return true
	}
	return false
}

// Valid сообщает, входит ли статус события в закрытый набор.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusLive, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}
