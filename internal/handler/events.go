package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/mmeshcher/coursemart/internal/middleware"
	"github.com/mmeshcher/coursemart/internal/model"
	"github.com/mmeshcher/coursemart/internal/service"
)

type eventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Speaker     string    `json:"speaker" validate:"required"`
	SpeakerBio  string    `json:"speakerBio"`
	Category    string    `json:"category" validate:"required,oneof=tecnologia negocios marketing diseno programacion otro"`
	MaxCapacity int       `json:"maxCapacity" validate:"required,min=1"`
	IsFree      bool      `json:"isFree"`
	Price       float64   `json:"price" validate:"min=0,max=1000000"`
	MeetingLink string    `json:"meetingLink" validate:"omitempty,url"`
}

type eventUpdateRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,min=1"`
	Date        *time.Time `json:"date"`
	Speaker     *string    `json:"speaker" validate:"omitempty,min=1"`
	SpeakerBio  *string    `json:"speakerBio"`
	Category    *string    `json:"category" validate:"omitempty,oneof=tecnologia negocios marketing diseno programacion otro"`
	MaxCapacity *int       `json:"maxCapacity" validate:"omitempty,min=1"`
	IsFree      *bool      `json:"isFree"`
	Price       *float64   `json:"price" validate:"omitempty,min=0,max=1000000"`
	MeetingLink *string    `json:"meetingLink" validate:"omitempty,url"`
	Status      *string    `json:"status" validate:"omitempty,oneof=upcoming live completed cancelled"`
}

type eventRegistrationRequest struct {
	EventID    int64  `json:"eventId" validate:"required,min=1"`
	FirstName  string `json:"firstName" validate:"required,max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"max=20"`
	Company    string `json:"company" validate:"max=100"`
	Role       string `json:"role" validate:"max=100"`
	Motivation string `json:"motivation" validate:"max=500"`
	Newsletter bool   `json:"newsletter"`
}

type eventResponse struct {
	ID             int64               `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Date           time.Time           `json:"date"`
	Speaker        string              `json:"speaker"`
	SpeakerBio     string              `json:"speakerBio,omitempty"`
	Category       model.EventCategory `json:"category"`
	MaxCapacity    int                 `json:"maxCapacity"`
	Registrations  int                 `json:"registrations"`
	AvailableSeats int                 `json:"availableSeats"`
	IsFree         bool                `json:"isFree"`
	Price          float64             `json:"price"`
	MeetingLink    string              `json:"meetingLink,omitempty"`
	Status         model.EventStatus   `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type registrationResponse struct {
	ID         int64                    `json:"id"`
	EventID    int64                    `json:"eventId"`
	FirstName  string                   `json:"firstName"`
	LastName   string                   `json:"lastName"`
	Email      string                   `json:"email"`
	Phone      string                   `json:"phone,omitempty"`
	Company    string                   `json:"company,omitempty"`
	Role       string                   `json:"role,omitempty"`
	Motivation string                   `json:"motivation,omitempty"`
	Newsletter bool                     `json:"newsletter"`
	UserID     *int64                   `json:"userId,omitempty"`
	Status     model.RegistrationStatus `json:"status"`
	Attended   bool                     `json:"attended"`
	CreatedAt  time.Time                `json:"createdAt"`
}

func newEventResponse(e *model.Event) eventResponse {
	available := e.MaxCapacity - e.Registrations
	if available < 0 {
		available = 0
	}

	return eventResponse{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		Date:           e.Date,
		Speaker:        e.Speaker,
		SpeakerBio:     e.SpeakerBio,
		Category:       e.Category,
		MaxCapacity:    e.MaxCapacity,
		Registrations:  e.Registrations,
		AvailableSeats: available,
		IsFree:         e.IsFree,
		Price:          fromCents(e.PriceCents),
		MeetingLink:    e.MeetingLink,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
	}
}

func newRegistrationResponse(reg *model.EventRegistration) registrationResponse {
	a := reg.Attendee
	return registrationResponse{
		ID:         reg.ID,
		EventID:    reg.EventID,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		Company:    a.Company,
		Role:       a.Role,
		Motivation: a.Motivation,
		Newsletter: a.Newsletter,
		UserID:     a.UserID,
		Status:     reg.Status,
		Attended:   reg.Attended,
		CreatedAt:  reg.CreatedAt,
	}
}

func (h *Handler) respondEvents(w http.ResponseWriter, r *http.Request, events []model.Event) {
	resp := make([]eventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, newEventResponse(&events[i]))
	}
	render.JSON(w, r, resp)
}

func (h *Handler) respondRegistrations(w http.ResponseWriter, r *http.Request, regs []model.EventRegistration) {
	resp := make([]registrationResponse, 0, len(regs))
	for i := range regs {
		resp = append(resp, newRegistrationResponse(&regs[i]))
	}
	render.JSON(w, r, resp)
}

// ListEvents возвращает активные события по дате.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondEvents(w, r, events)
}

// UpcomingEvents возвращает предстоящие события.
func (h *Handler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.GetUpcomingEvents(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondEvents(w, r, events)
}

// GetEvent возвращает событие по идентификатору.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	e, err := h.service.GetEvent(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newEventResponse(e))
}

// CreateEvent создаёт событие.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	e, err := h.service.CreateEvent(r.Context(), actor, &model.Event{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Speaker:     req.Speaker,
		SpeakerBio:  req.SpeakerBio,
		Category:    model.EventCategory(req.Category),
		MaxCapacity: req.MaxCapacity,
		IsFree:      req.IsFree,
		PriceCents:  toCents(req.Price),
		MeetingLink: req.MeetingLink,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newEventResponse(e))
}

// UpdateEvent изменяет переданные поля события.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	var req eventUpdateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	upd := service.EventUpdate{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Speaker:     req.Speaker,
		SpeakerBio:  req.SpeakerBio,
		MaxCapacity: req.MaxCapacity,
		IsFree:      req.IsFree,
		MeetingLink: req.MeetingLink,
	}
	if req.Category != nil {
		category := model.EventCategory(*req.Category)
		upd.Category = &category
	}
	if req.Status != nil {
		status := model.EventStatus(*req.Status)
		upd.Status = &status
	}
	if req.Price != nil {
		cents := toCents(*req.Price)
		upd.PriceCents = &cents
	}

	e, err := h.service.UpdateEvent(r.Context(), actor, id, upd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newEventResponse(e))
}

// DeleteEvent снимает событие с публикации.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), actor, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, messageResponse{Message: "event deleted"})
}

// RegisterForEvent регистрирует участника на событие. Вход не обязателен:
// если запрос содержит действующий токен, регистрация привязывается к пользователю.
func (h *Handler) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRegistrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	attendee := model.Attendee{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		Company:    req.Company,
		Role:       req.Role,
		Motivation: req.Motivation,
		Newsletter: req.Newsletter,
	}
	if actor, ok := middleware.GetActorFromContext(r.Context()); ok {
		userID := actor.UserID
		attendee.UserID = &userID
	}

	reg, err := h.service.RegisterForEvent(r.Context(), req.EventID, attendee)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newRegistrationResponse(reg))
}

// MyRegistrations возвращает регистрации по адресу почты из query-параметра email.
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.service.GetRegistrationsByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondRegistrations(w, r, regs)
}

// EventRegistrations возвращает регистрации события администратору.
func (h *Handler) EventRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	eventID, ok := h.idParam(w, r, "eventId")
	if !ok {
		return
	}

	regs, err := h.service.GetEventRegistrations(r.Context(), actor, eventID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondRegistrations(w, r, regs)
}

// CancelEventRegistration отменяет регистрацию и освобождает место.
func (h *Handler) CancelEventRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}

	reg, err := h.service.CancelEventRegistration(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	render.JSON(w, r, newRegistrationResponse(reg))
}
